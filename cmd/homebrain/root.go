package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/homebrain/pkg/config"
	"github.com/rhuss/homebrain/pkg/debug"
)

type rootOptions struct {
	configPath string
}

// load reads the configuration and installs the logger it describes.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "homebrain",
		Short: "Routed conversational assistant",
		Long: `homebrain classifies each message into a capability (personal, projects,
homelab or general), asks for clarification when the classification is
uncertain, and answers with the capability's handler.

Configuration is read from --config, $HOMEBRAIN_CONFIG, ./config.yaml or
/etc/homebrain/config.yaml, with HOMEBRAIN_* environment overrides.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newThreadsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the homebrain version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "homebrain %s\n", version)
		},
	}
}
