package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glottahq/glotta/pkg/config"
	"github.com/glottahq/glotta/pkg/keyring"
	"github.com/glottahq/glotta/pkg/types"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage provider credentials",
}

var credentialsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a credentials file",
	Long: `Parse and validate a credentials file without starting the server.

Checks YAML structure, required fields, duplicate ids, and limit ranges,
and shows the effective per-key limits after defaults are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		defaults := config.Default()
		creds, err := keyring.LoadCredentials(path, types.CredentialLimits{
			RequestsPerMinute: defaults.DefaultRPM,
			RequestsPerDay:    defaults.DefaultRPD,
			TokensPerMinute:   defaults.DefaultTPM,
		})
		if err != nil {
			return err
		}

		if len(creds) == 0 {
			fmt.Printf("! %s is valid but contains no keys\n", path)
			return nil
		}

		fmt.Printf("✓ %d credential(s) valid\n", len(creds))
		for _, c := range creds {
			fmt.Printf("  %-20s rpm=%-5d rpd=%-6d tpm=%d\n",
				c.ID, c.Limits.RequestsPerMinute, c.Limits.RequestsPerDay, c.Limits.TokensPerMinute)
		}
		return nil
	},
}

func init() {
	credentialsValidateCmd.Flags().StringP("file", "f", "config/credentials.yaml", "Credentials file to validate")
	credentialsCmd.AddCommand(credentialsValidateCmd)
}
