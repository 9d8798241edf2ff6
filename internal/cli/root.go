package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/database"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/internal/storage"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// auditArchive is the part of storage.AuditArchive the CLI needs.
type auditArchive interface {
	services.ArchiveStore
	List(ctx context.Context, prefix string) ([]storage.ArchivedObject, error)
}

var (
	flagJSON bool

	cfg *config.Config
	db  *gorm.DB

	openDB      = database.Connect
	openArchive = func(minioCfg config.MinIOConfig) (auditArchive, error) {
		return storage.NewAuditArchive(minioCfg)
	}
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Operator tooling for the login service",
	Long: `authctl works directly against the login service's database and audit
archive, using the same environment variables as the server.

  authctl sweep                       Remove expired sessions, pending logins and tokens
  authctl revoke-sessions <email>     Sign an account out of every device
  authctl verify-account <email>      Mark an account's email as verified
  authctl export-audit                Ship new audit events to the archive`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["skipDB"] == "true" {
			return nil
		}
		cfg = config.Load()
		conn, err := openDB(cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		db = conn
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
}

// Execute runs the root command.
func Execute() error {
	logger.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
