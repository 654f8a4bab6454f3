package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/wachat/internal/config"
	"github.com/matheus3301/wachat/internal/profile"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, name, err := opts.loadConfig()
				if err != nil {
					return err
				}
				if opts.json {
					return outputJSON(cmd.OutOrStdout(), map[string]any{"profile": name, "config": cfg})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s (profile %s)\n", profile.ConfigPath(), name)
				return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			},
		},
		&cobra.Command{
			Use:   "set-url <url>",
			Short: "Set the backend base url",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.ValidateServerURL(args[0]); err != nil {
					return err
				}
				return updateConfig(func(cfg *config.Config) { cfg.ServerURL = args[0] })
			},
		},
		&cobra.Command{
			Use:   "set-profile <name>",
			Short: "Set the default profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := profile.ValidateName(args[0]); err != nil {
					return err
				}
				return updateConfig(func(cfg *config.Config) { cfg.DefaultProfile = args[0] })
			},
		},
	)
	return cmd
}

// updateConfig rewrites the config file without the environment overlay.
func updateConfig(mutate func(*config.Config)) error {
	path := profile.ConfigPath()
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	mutate(cfg)
	return config.Save(path, cfg)
}
