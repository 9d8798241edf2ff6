package cli

import (
	"fmt"

	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var revokeSessionsCmd = &cobra.Command{
	Use:   "revoke-sessions <email>",
	Short: "Deactivate every session of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, err := services.NewAccountStore(db).FindByEmail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("looking up %s: %w", args[0], err)
		}

		revoked, err := services.NewSessionRegistry(db, cfg.Session.TTL).RevokeAllExcept(ctx, user.ID, uuid.Nil)
		if err != nil {
			return fmt.Errorf("revoking sessions: %w", err)
		}

		recordOperatorAction(user.ID, "session.revoked_by_operator", map[string]interface{}{"revoked": revoked})

		if flagJSON {
			writeJSON(cmd.OutOrStdout(), map[string]interface{}{"email": user.Email, "revoked": revoked})
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d session(s) for %s\n", revoked, user.Email)
		return nil
	},
}

var verifyAccountCmd = &cobra.Command{
	Use:   "verify-account <email>",
	Short: "Mark an account's email address as verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		accounts := services.NewAccountStore(db)
		user, err := accounts.FindByEmail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("looking up %s: %w", args[0], err)
		}

		if user.IsVerified {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already verified\n", user.Email)
			return nil
		}
		if err := accounts.MarkVerified(ctx, user.ID); err != nil {
			return fmt.Errorf("verifying %s: %w", user.Email, err)
		}

		recordOperatorAction(user.ID, "account.verified_by_operator", nil)
		fmt.Fprintf(cmd.OutOrStdout(), "Verified %s\n", user.Email)
		return nil
	},
}

func recordOperatorAction(userID uuid.UUID, action string, details map[string]interface{}) {
	audit := services.NewAuditService(db, nil, 1)
	audit.Record(services.AuditEntry{UserID: &userID, Action: action, Details: details})
	audit.Flush()
}

func init() {
	rootCmd.AddCommand(revokeSessionsCmd)
	rootCmd.AddCommand(verifyAccountCmd)
}
