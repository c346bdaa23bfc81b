package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"whatsapp-router/internal/repositories"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = false
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repositories.Migrate(cmd.Context(), db, cfg.Database.Driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s atualizado\n", cfg.Database.Driver)
			return nil
		},
	}
}

func newPhoneCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phone",
		Short: "Phone normalization helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "normalize <phone>",
		Short: "Print the canonical form of a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			normalized, err := normalizerFrom(cfg.Phone).Normalize(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), normalized)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "variants <phone>",
		Short: "Print the lookup variants of a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			variants, err := normalizerFrom(cfg.Phone).Variants(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(variants, "\n"))
			return nil
		},
	})
	return cmd
}

func newHealthCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Delivery health reports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "fleet",
		Short: "Print the delivery health of every live conversation as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			reports, err := a.reconciler.FleetHealth(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		},
	})
	return cmd
}
