package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agrilocal/advisory-aggregation/internal/menu"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Start the interactive farmer menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr so the reports stay readable.
		a, err := bootstrap(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.Error().Err(err).Msg("closing cache backend")
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := menu.New(a.Aggregator, a.Config.Profile, cmd.InOrStdin(), cmd.OutOrStdout())
		if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
