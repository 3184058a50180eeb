package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.pilab.hu/fence/authcode"
	"go.pilab.hu/fence/domain"
)

// codeView describes a stored code. The code itself is never printed back.
type codeView struct {
	ClientID    string    `yaml:"client_id"`
	UserID      string    `yaml:"user_id"`
	RedirectURI string    `yaml:"redirect_uri"`
	Scopes      []string  `yaml:"scopes"`
	IssuedAt    time.Time `yaml:"issued_at"`
	ExpiresAt   time.Time `yaml:"expires_at"`
	Consumed    bool      `yaml:"consumed"`
}

func newCodesCmd(a *app) *cobra.Command {
	codesCmd := &cobra.Command{
		Use:     "codes",
		Short:   "Inspect authorization codes",
		Aliases: []string{"code"},
	}

	codesCmd.AddCommand(newCodesInspectCmd(a))

	return codesCmd
}

func newCodesInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect CODE",
		Short: "Show the bindings and state of an authorization code without consuming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := a.persistentStores(cmd.Context())
			if err != nil {
				return err
			}
			defer stores.Close(cmd.Context())

			rec, err := authcode.Lookup(cmd.Context(), stores.AuthCodes, args[0])
			if errors.Is(err, domain.ErrAuthCodeInvalid) {
				return errors.New("code is unknown or expired")
			}
			if err != nil {
				return err
			}

			return printYAML(cmd, codeView{
				ClientID:    rec.ClientID,
				UserID:      rec.UserID,
				RedirectURI: rec.RedirectURI,
				Scopes:      rec.Scopes,
				IssuedAt:    rec.IssuedAt,
				ExpiresAt:   rec.ExpiresAt,
				Consumed:    rec.Consumed,
			})
		},
	}
}
