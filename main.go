package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mobility/m/internal/config"
	"mobility/m/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat == "json")

	if err := rootCommand(cfg).ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Fatal("mobility exited")
	}
}

func rootCommand(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "mobility",
		Short:         "Mobility assistance web server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Print row counts for every table",
			RunE: func(cmd *cobra.Command, args []string) error {
				return check(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Write the database report once and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return export(cmd.Context(), cfg)
			},
		},
	)
	return root
}
