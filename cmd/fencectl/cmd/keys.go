package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.pilab.hu/fence/config"
	"go.pilab.hu/fence/keys"
)

// keyPairEntry mirrors one JWT_KEYPAIR_FILES item.
type keyPairEntry struct {
	KeyID          string `yaml:"key_id"`
	PublicKeyFile  string `yaml:"public_key_file"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

func newKeysCmd(a *app) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage token signing keys",
	}

	keysCmd.AddCommand(newKeysGenerateCmd(a))

	return keysCmd
}

func newKeysGenerateCmd(a *app) *cobra.Command {
	var (
		dir  string
		bits int
	)

	generateCmd := &cobra.Command{
		Use:   "generate KEY_ID",
		Short: "Generate an RSA signing key pair",
		Long: `Generate an RSA key pair as PEM files under KEYS_ROOT.

Append the printed entry to JWT_KEYPAIR_FILES to rotate: the last entry signs,
earlier entries keep verifying tokens they signed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kid := args[0]
			entry := keyPairEntry{
				KeyID:          kid,
				PublicKeyFile:  filepath.Join(dir, kid+"_public.pem"),
				PrivateKeyFile: filepath.Join(dir, kid+"_private.pem"),
			}

			for _, kp := range a.cfg.JWTKeyPairFiles {
				if kp.KeyID == kid {
					return fmt.Errorf("key id %q is already configured", kid)
				}
			}

			key, err := keys.GenerateRSAKey(bits)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			resolved := config.KeyPairFiles{
				KeyID:          kid,
				PublicKeyFile:  a.cfg.ResolveKeyPath(entry.PublicKeyFile),
				PrivateKeyFile: a.cfg.ResolveKeyPath(entry.PrivateKeyFile),
			}
			if err := keys.WriteKeyPair(key, resolved); err != nil {
				return err
			}
			a.logger.Info(cmd.Context(), "key pair written", map[string]any{
				"key_id":  kid,
				"private": resolved.PrivateKeyFile,
			})

			return printYAML(cmd, map[string][]keyPairEntry{"JWT_KEYPAIR_FILES": {entry}})
		},
	}

	generateCmd.Flags().StringVar(&dir, "dir", "keys", "directory relative to KEYS_ROOT")
	generateCmd.Flags().IntVar(&bits, "bits", keys.DefaultKeySize, "RSA key size")

	return generateCmd
}
