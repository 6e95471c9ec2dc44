package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calendartask/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, log, version)
		if err != nil {
			log.Errorw("[serve][init][err]", "error", err)
			return err
		}
		defer a.Close()

		log.Infow("[serve][start]", "version", version, "driver", cfg.Database.Driver, "port", cfg.Server.Port)
		if err := a.Run(ctx); err != nil {
			log.Errorw("[serve][err]", "error", err)
			return err
		}
		log.Infow("[serve][stopped]")
		return nil
	},
}
