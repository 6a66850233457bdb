package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hirelens/envcipher"
)

var (
	configPath string
	verbose    bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "envcipher",
	Short: "Encrypt and decrypt environment-variable values with a shared secret key",
	Long: `envcipher moves sensitive configuration values between the backend and
trusted clients as self-contained ciphertext tokens (AES-256-CBC,
base64(iv):base64(ciphertext)).

The shared secret key can be passed as an argument, read from the
ENVCIPHER_KEY environment variable, or resolved from configured key
sources (file, dotenv, OS keyring, age-encrypted key file, or an
external command).`,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		} else {
			log.SetLevel(logrus.WarnLevel)
		}
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <token> [secret]",
	Short: "Decrypt a ciphertext token and print the plaintext",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// arguments are valid past this point; failures are operational
		cmd.SilenceUsage = true

		cipher, err := newCipher(args[1:])
		if err != nil {
			return err
		}

		plaintext, err := cipher.Decrypt(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), plaintext)
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt <plaintext> [secret]",
	Short: "Encrypt a value and print the ciphertext token",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cipher, err := newCipher(args[1:])
		if err != nil {
			return err
		}

		token, err := cipher.Encrypt(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Decrypt every encrypted variable in a JSON response document",
	Long: `Reads an environment-variable response document (JSON with a success
flag and a variables list) from the given file or stdin, decrypts every
record marked encrypted, and writes the result to stdout. The first
record that fails to decrypt aborts the batch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read response document: %w", err)
		}

		cipher, err := newCipher(nil)
		if err != nil {
			return err
		}

		out, err := cipher.DecryptResponseJSON(data)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// newCipher builds a Cipher from an optional positional secret, the
// configuration file, and the default environment fallback.
func newCipher(secretArgs []string) (*envcipher.Cipher, error) {
	opts := []envcipher.Option{envcipher.WithLogger(log)}

	if len(secretArgs) > 0 {
		opts = append(opts, envcipher.WithKey(secretArgs[0]))
	}

	if configPath != "" {
		cfg, err := envcipher.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, envcipher.WithConfig(cfg))
	}

	return envcipher.New(opts...)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a key-source configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		os.Exit(1)
	}
}
