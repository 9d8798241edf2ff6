package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is injected at build time:
//
//	go build -ldflags "-X github.com/dietchse/basic-login-ap/internal/cli.Version=1.2.3" ./cmd/authctl
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Show the authctl version",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			writeJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "authctl %s\n", Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
