package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironshield/keyring"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Master secret management tools",
	Long:  `Commands for generating and deriving formatted anti-forgery master secrets.`,
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a fresh master secret",
	Long: `Prints a new formatted master secret to stdout. Store it in your secret
manager and hand it to the server via --secret-env, --secret-file, or
--secret-vault-*; never on the command line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := keyring.NewMasterSecret()
		if err != nil {
			return fmt.Errorf("generating master secret: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret.String())
		fmt.Fprintf(os.Stderr, "key id: %s\n", secret.ID())
		return nil
	},
}

var deriveSalt string

var secretDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive a deterministic master secret from a passphrase",
	Long: `Reads a passphrase from stdin and derives a master secret from it with
Argon2id. The same passphrase and salt always produce the same secret.

FOR DEVELOPMENT AND TESTS ONLY. Derived secrets concentrate all security in
the passphrase; production deployments use 'secret generate' and a secret
manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "passphrase: ")
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			return fmt.Errorf("no passphrase given")
		}
		passphrase := scanner.Text()
		if passphrase == "" {
			return fmt.Errorf("no passphrase given")
		}

		var opts []keyring.DeriveOption
		if deriveSalt != "" {
			opts = append(opts, keyring.WithSalt([]byte(deriveSalt)))
		}
		secret, err := keyring.DeriveMasterSecret(passphrase, opts...)
		if err != nil {
			return fmt.Errorf("deriving master secret: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret.String())
		fmt.Fprintf(os.Stderr, "key id: %s (derived - development use only)\n", secret.ID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretGenerateCmd)
	secretCmd.AddCommand(secretDeriveCmd)
	secretDeriveCmd.Flags().StringVar(&deriveSalt, "salt", "", "Application-specific salt (defaults to a fixed built-in)")
}
