package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/wachat/internal/app"
	"github.com/matheus3301/wachat/internal/config"
	"github.com/matheus3301/wachat/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type rootOptions struct {
	profile string
	server  string
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "wachat",
		Short:         "Terminal client for a WhatsApp business chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.profile, "profile", "", "profile name (overrides config default)")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "backend base url (overrides config)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output in JSON format")

	root.AddCommand(
		newChatsCmd(opts),
		newHistoryCmd(opts),
		newSendCmd(opts),
		newWatchCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// loadConfig returns the effective configuration and profile name.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return nil, "", err
	}
	if o.server != "" {
		if err := config.ValidateServerURL(o.server); err != nil {
			return nil, "", err
		}
		cfg.ServerURL = o.server
	}
	name := profile.Resolve(o.profile, cfg)
	if err := profile.ValidateName(name); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

// withClient starts the client, runs fn and stops the client.
func (o *rootOptions) withClient(ctx context.Context, noPush bool, fn func(context.Context, *app.Client) error) error {
	cfg, name, err := o.loadConfig()
	if err != nil {
		return err
	}

	var client *app.Client
	fxApp := fx.New(
		app.Module(app.Params{ProfileName: name, Config: cfg, NoPush: noPush}),
		fx.Populate(&client),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout*time.Duration(cfg.RequestRetries+2))
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	runErr := fn(ctx, client)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
