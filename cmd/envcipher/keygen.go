package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hirelens/envcipher"
	"github.com/hirelens/envcipher/crypto"
)

var (
	keygenPassphrase    string
	keygenSalt          string
	keygenKeyringName   string
	keygenKeyringSvc    string
	keygenAgeRecipients []string
	keygenOutput        string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a shared secret key",
	Long: `Generates a random key, or derives one from a passphrase with scrypt
when --passphrase is set. The key is printed to stdout unless it is
provisioned into the OS keyring (--keyring-name) or written to an
age-encrypted key file (--age-recipient with --output).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var key string
		var err error
		if keygenPassphrase != "" {
			var salt []byte
			if keygenSalt != "" {
				salt, err = crypto.DecodeValue(keygenSalt)
				if err != nil {
					return fmt.Errorf("invalid salt: %w", err)
				}
			}
			var outSalt string
			key, outSalt, err = crypto.DerivePassphraseKey([]byte(keygenPassphrase), salt)
			if err != nil {
				return fmt.Errorf("failed to derive key: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("→")+" salt: "+outSalt)
		} else {
			key, err = crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
		}

		provisioned := false

		if keygenKeyringName != "" {
			if err := envcipher.StoreKeyringKey(keygenKeyringSvc, keygenKeyringName, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("✓")+" key stored in keyring entry "+color.YellowString(keygenKeyringName))
			provisioned = true
		}

		if keygenOutput != "" {
			if len(keygenAgeRecipients) == 0 {
				return fmt.Errorf("--output requires at least one --age-recipient")
			}
			if err := envcipher.WriteAgeKeyFile(keygenOutput, key, keygenAgeRecipients); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("✓")+" key written to "+color.YellowString(keygenOutput))
			provisioned = true
		}

		if !provisioned {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenPassphrase, "passphrase", "", "derive the key from a passphrase instead of generating a random one")
	keygenCmd.Flags().StringVar(&keygenSalt, "salt", "", "base64 salt for passphrase derivation (random when omitted)")
	keygenCmd.Flags().StringVar(&keygenKeyringName, "keyring-name", "", "store the key in the OS keyring under this entry name")
	keygenCmd.Flags().StringVar(&keygenKeyringSvc, "keyring-service", envcipher.DefaultKeyringService, "keyring service namespace")
	keygenCmd.Flags().StringArrayVar(&keygenAgeRecipients, "age-recipient", nil, "age recipient that may unwrap the key file (repeatable)")
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "write the key to an age-encrypted key file at this path")
}
