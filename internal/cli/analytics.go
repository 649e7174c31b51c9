package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/streaklog/internal/engine"
)

type analyticsFlags struct {
	userID   uint
	start    string
	end      string
	limit    int
	habitIDs []uint
}

func newAnalyticsCommand(opts *RootOptions) *cobra.Command {
	flags := &analyticsFlags{}

	kinds := make([]string, 0, len(engine.AnalyticsKinds()))
	for _, kind := range engine.AnalyticsKinds() {
		kinds = append(kinds, string(kind))
	}

	cmd := &cobra.Command{
		Use:       "analytics <kind>",
		Short:     "Run a read-only analytics query for a user",
		Long:      "Supported kinds: " + strings.Join(kinds, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.userID == 0 {
				return fmt.Errorf("--user is required")
			}

			params := engine.AnalyticsParams{Limit: flags.limit, HabitIDs: flags.habitIDs}
			var err error
			if params.Start, err = parseDateFlag("start", flags.start); err != nil {
				return err
			}
			if params.End, err = parseDateFlag("end", flags.end); err != nil {
				return err
			}

			a, err := opts.openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Engine.QueryAnalytics(cmd.Context(), flags.userID, engine.AnalyticsKind(args[0]), params)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Output, result)
		},
	}

	cmd.Flags().UintVar(&flags.userID, "user", 0, "user id (required)")
	cmd.Flags().StringVar(&flags.start, "start", "", "range start (2006-01-02)")
	cmd.Flags().StringVar(&flags.end, "end", "", "range end (2006-01-02), defaults to today")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "result limit for top_habits")
	cmd.Flags().UintSliceVar(&flags.habitIDs, "habit", nil, "restrict to habit ids")

	return cmd
}

func parseDateFlag(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, value, engine.ErrInvalidRange)
	}
	return t, nil
}
