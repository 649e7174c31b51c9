package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/streaklog/internal/app"
	"github.com/streaklog/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Output  string // "json" | "yaml"

	// Open 构造应用依赖；测试中替换为内存数据库
	Open func(cfg config.AppConfig, logger *slog.Logger) (*app.App, error)
}

// ValidOutputs defines the allowed output formats.
var ValidOutputs = []string{"json", "yaml"}

// NewRootCommand creates the root command for streakctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: app.New})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "streakctl",
		Short:         "streakctl - habit streak maintenance",
		Long:          "Recompute cached habit, category and user statistics and run analytics queries against the streaklog database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "json", "output format (json|yaml)")

	cmd.AddCommand(newRecomputeCommand(opts))
	cmd.AddCommand(newAnalyticsCommand(opts))

	return cmd
}

// openApp 读取环境配置并连接数据库；非 verbose 时丢弃日志
func (o *RootOptions) openApp(stderr io.Writer) (*app.App, error) {
	config.LoadDotEnv()
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if o.Verbose {
		if stderr == nil {
			stderr = os.Stderr
		}
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)

	return o.Open(cfg, logger)
}
