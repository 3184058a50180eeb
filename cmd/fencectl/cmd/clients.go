package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.pilab.hu/fence/client"
	"go.pilab.hu/fence/config"
	"golang.org/x/crypto/bcrypt"
)

// createdClient is printed once after registration; the secret is not kept anywhere.
type createdClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// Clients is the entry to append to CLIENTS_FILE on the memory backend.
	Clients []client.FileEntry `yaml:"clients,omitempty"`
}

func newClientsCmd(a *app) *cobra.Command {
	clientsCmd := &cobra.Command{
		Use:     "clients",
		Short:   "Manage OAuth2 clients",
		Aliases: []string{"client"},
	}

	clientsCmd.AddCommand(newClientsCreateCmd(a), newClientsListCmd(a), newClientsDeleteCmd(a))

	return clientsCmd
}

func newClientsCreateCmd(a *app) *cobra.Command {
	var (
		redirectURIs []string
		scopes       []string
		cost         int
	)

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a confidential client and print its secret",
		Long: `Register a confidential client for the authorization code grant.

On the mongo and redis backends the client is stored directly. On the memory
backend nothing is stored; the printed clients entry belongs in CLIENTS_FILE.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := a.stores(cmd.Context())
			if err != nil {
				return err
			}
			defer stores.Close(cmd.Context())

			svc := client.NewService(stores.Clients, cost)
			c, secret, err := svc.Create(cmd.Context(), client.CreateRequest{
				Name:          args[0],
				RedirectURIs:  redirectURIs,
				AllowedScopes: scopes,
			})
			if err != nil {
				return err
			}
			a.logger.Info(cmd.Context(), "client registered", map[string]any{"client_id": c.ID})

			out := createdClient{ClientID: c.ID, ClientSecret: secret}
			if a.cfg.StoreBackend == config.BackendMemory {
				out.Clients = []client.FileEntry{client.NewFileEntry(c)}
			}
			return printYAML(cmd, out)
		},
	}

	createCmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "registered redirect URI (repeatable)")
	createCmd.Flags().StringSliceVar(&scopes, "scope", []string{"openid", "profile", "email"}, "allowed scope (repeatable)")
	createCmd.Flags().IntVar(&cost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost of the stored secret hash")
	_ = createCmd.MarkFlagRequired("redirect-uri")

	return createCmd
}

// clientView is the listed form of a client; it leaves out the secret hash.
type clientView struct {
	ClientID      string   `yaml:"client_id"`
	Name          string   `yaml:"name"`
	RedirectURIs  []string `yaml:"redirect_uris"`
	AllowedScopes []string `yaml:"allowed_scopes"`
	Active        bool     `yaml:"active"`
}

func newClientsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, err := a.persistentStores(cmd.Context())
			if err != nil {
				return err
			}
			defer stores.Close(cmd.Context())

			list, err := client.NewService(stores.Clients, 0).List(cmd.Context())
			if err != nil {
				return err
			}

			out := make([]clientView, 0, len(list))
			for _, c := range list {
				out = append(out, clientView{
					ClientID:      c.ID,
					Name:          c.Name,
					RedirectURIs:  c.RedirectURIs,
					AllowedScopes: c.AllowedScopes,
					Active:        c.IsActive,
				})
			}
			return printYAML(cmd, out)
		},
	}
}

func newClientsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CLIENT_ID",
		Short: "Delete a client; its outstanding codes can no longer be redeemed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := a.persistentStores(cmd.Context())
			if err != nil {
				return err
			}
			defer stores.Close(cmd.Context())

			if err := client.NewService(stores.Clients, 0).Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete client %s: %w", args[0], err)
			}
			a.logger.Info(cmd.Context(), "client deleted", map[string]any{"client_id": args[0]})
			return nil
		},
	}
}
