package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/streaklog/internal/engine"
)

func newRecomputeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "recompute <habit|category|user> <id>",
		Short:     "Recompute cached statistics from the completion log",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(engine.LevelHabit), string(engine.LevelCategory), string(engine.LevelUser)},
		RunE: func(cmd *cobra.Command, args []string) error {
			level := engine.Level(args[0])
			id, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}

			a, err := opts.openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var result any
			switch level {
			case engine.LevelHabit:
				result, err = a.Engine.RecomputeHabitStats(ctx, uint(id))
			case engine.LevelCategory:
				result, err = a.Engine.RecomputeCategoryStats(ctx, uint(id))
			case engine.LevelUser:
				result, err = a.Engine.RecomputeUserStats(ctx, uint(id))
			default:
				return fmt.Errorf("unknown level %q: must be habit, category or user", args[0])
			}
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), opts.Output, result)
		},
	}
}
