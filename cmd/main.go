package main

import (
	"os"

	"github.com/spf13/cobra"

	"whatsapp-router/config"
	_ "whatsapp-router/docs"
	"whatsapp-router/internal/utils"
)

// @title WhatsApp Router API
// @version 1.0
// @description Conversation routing, operator messaging and delivery health for a WhatsApp channel
// @BasePath /api/v1
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "whatsapp-router",
		Short:        "WhatsApp conversation router",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional).")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := utils.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newPhoneCmd(load))
	cmd.AddCommand(newHealthCmd(load))
	return cmd
}

type configLoader func() (*config.Config, error)
