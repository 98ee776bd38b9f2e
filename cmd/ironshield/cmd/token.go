package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironshield/csrf"
	"github.com/jmcleod/ironshield/keyring"
	"github.com/jmcleod/ironshield/secrets"
)

var (
	tokenSession string
	tokenValue   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Operational token debugging tools",
	Long: `Issue and validate anti-forgery tokens against the configured master
secret, for debugging token problems outside the server.`,
}

// tokenRing builds a single-key ring from the same secret sources the server
// uses (environment variable or file).
func tokenRing(cmd *cobra.Command) (*keyring.Ring, error) {
	source, err := secretSource()
	if err != nil {
		return nil, err
	}
	secret, err := secrets.Load(cmd.Context(), source)
	if err != nil {
		return nil, err
	}
	return keyring.New(secret)
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token bound to a session identifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ring, err := tokenRing(cmd)
		if err != nil {
			return err
		}
		defer ring.Close()

		issuer := csrf.NewIssuer(ring.Scoped(keyring.ScopeSession))
		token, err := issuer.Issue(tokenSession)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a token against a session identifier",
	Long: `Checks whether a presented token is valid for the given session under the
configured secret. Exits 0 when the token is valid and 1 when it is not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ring, err := tokenRing(cmd)
		if err != nil {
			return err
		}
		defer ring.Close()

		validator := csrf.NewValidator(ring.Scoped(keyring.ScopeSession))
		res := validator.Validate(tokenSession, tokenValue)
		if !res.OK {
			fmt.Fprintf(os.Stderr, "INVALID (%s)\n", res.Reason)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "VALID")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenValidateCmd)

	tokenCmd.PersistentFlags().StringVar(&secretEnv, "secret-env", "IRONSHIELD_SECRET", "Environment variable holding the master secret")
	tokenCmd.PersistentFlags().StringVar(&secretFile, "secret-file", "", "File holding the master secret (first line)")

	tokenIssueCmd.Flags().StringVar(&tokenSession, "session", "", "Session identifier to bind the token to")
	tokenIssueCmd.MarkFlagRequired("session")

	tokenValidateCmd.Flags().StringVar(&tokenSession, "session", "", "Session identifier the token should be bound to")
	tokenValidateCmd.Flags().StringVar(&tokenValue, "token", "", "Presented token to check")
	tokenValidateCmd.MarkFlagRequired("session")
	tokenValidateCmd.MarkFlagRequired("token")
}
