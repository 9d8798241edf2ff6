package cli

import (
	"fmt"

	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired sessions, pending logins and tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		janitor := services.NewJanitor(
			services.NewSessionRegistry(db, cfg.Session.TTL),
			services.NewPendingLoginStore(db, cfg.TwoFactor.PendingTTL, cfg.TwoFactor.MaxPendingAttempts),
			services.NewTokenStore(db),
		)

		report, err := janitor.SweepOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweeping: %w", err)
		}

		if flagJSON {
			writeJSON(cmd.OutOrStdout(), report)
			return nil
		}
		writeSweepReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
