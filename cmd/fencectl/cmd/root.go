// Package cmd implements the fencectl operator commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.pilab.hu/fence/config"
	"go.pilab.hu/fence/internal/backend"
	"go.pilab.hu/fence/log"
)

const appName = "fencectl"

var errEphemeralBackend = errors.New("the memory backend keeps no state between runs; set STORE_BACKEND to mongo or redis")

// openFunc opens the configured stores.
type openFunc func(ctx context.Context, cfg *config.Config) (*backend.Stores, error)

// app is the state shared by every command of one invocation.
type app struct {
	configFile string
	cfg        *config.Config
	logger     log.Logger
	open       openFunc
}

// NewRootCmd builds the fencectl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(backend.Open)
}

func newRootCmd(open openFunc) *cobra.Command {
	a := &app{open: open}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "fencectl manages the users, clients and signing keys of a fence server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg

			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			a.logger = log.New(cmd.ErrOrStderr(), level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "",
		"config file (default is /etc/fence/config.yaml or $HOME/.fence/config.yaml)")

	rootCmd.AddCommand(newUsersCmd(a), newClientsCmd(a), newCodesCmd(a), newKeysCmd(a))

	return rootCmd
}

// stores opens the configured backend. The caller closes it.
func (a *app) stores(ctx context.Context) (*backend.Stores, error) {
	return a.open(ctx, a.cfg)
}

// persistentStores opens the configured backend, refusing the memory backend
// whose state belongs to the running server only.
func (a *app) persistentStores(ctx context.Context) (*backend.Stores, error) {
	if a.cfg.StoreBackend == config.BackendMemory {
		return nil, errEphemeralBackend
	}
	return a.stores(ctx)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
