package cli

import (
	"errors"
	"fmt"

	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/spf13/cobra"
)

var errArchiveDisabled = errors.New("audit archive is not configured; set MINIO_ENABLED=true")

func connectArchive() (auditArchive, error) {
	if !cfg.MinIO.Enabled {
		return nil, errArchiveDisabled
	}
	archive, err := openArchive(cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("connecting to archive: %w", err)
	}
	return archive, nil
}

var exportAuditCmd = &cobra.Command{
	Use:   "export-audit",
	Short: "Upload audit events recorded since the last export",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := connectArchive()
		if err != nil {
			return err
		}

		exported, err := services.NewAuditService(db, archive, 1).ExportOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("exporting audit events: %w", err)
		}

		if flagJSON {
			writeJSON(cmd.OutOrStdout(), map[string]int{"exported": exported})
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d audit event(s)\n", exported)
		return nil
	},
}

var listExportsCmd = &cobra.Command{
	Use:   "list-exports",
	Short: "List audit exports in the archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := connectArchive()
		if err != nil {
			return err
		}

		objects, err := archive.List(cmd.Context(), services.AuditExportPrefix)
		if err != nil {
			return fmt.Errorf("listing exports: %w", err)
		}

		if flagJSON {
			writeJSON(cmd.OutOrStdout(), objects)
			return nil
		}
		writeExports(cmd.OutOrStdout(), objects)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportAuditCmd)
	rootCmd.AddCommand(listExportsCmd)
}
