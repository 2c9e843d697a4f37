package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Model config management commands",
	}

	cmd.AddCommand(newModelsSyncCmd(opts))
	cmd.AddCommand(newModelsListCmd(opts))
	return cmd
}

func newModelsSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upsert models from the config file into the model_configs table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a := newApp(cfg, logger)
			defer a.Close()
			if err := a.openSQL(cmd.Context()); err != nil {
				return err
			}

			// Chain position wins over the YAML priority, as in the static source.
			// Credentials stay in the config file and are resolved per provider at load time.
			configs := cfg.ModelConfigs()
			usages := make([]string, 0, len(cfg.Routing.Chains))
			for usage := range cfg.Routing.Chains {
				usages = append(usages, usage)
			}
			slices.Sort(usages)
			for _, usage := range usages {
				for i, id := range cfg.Routing.Chains[usage] {
					mc := configs[id]
					mc.UsageType = usage
					mc.Priority = i
					mc.Primary = i == 0
					configs[id] = mc
				}
			}
			for id, mc := range configs {
				mc.APIKey = ""
				configs[id] = mc
			}

			ids := make([]string, 0, len(configs))
			for id := range configs {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			for _, id := range ids {
				if err := a.models.Upsert(cmd.Context(), configs[id]); err != nil {
					return fmt.Errorf("upsert %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d model config(s)\n", len(ids))
			return nil
		},
	}
}

func newModelsListCmd(opts *rootOptions) *cobra.Command {
	var usageType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the fallback chain the router would use for a usage type",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a := newApp(cfg, logger)
			defer a.Close()

			source, err := a.configSource(cmd.Context())
			if err != nil {
				return err
			}
			configs, err := source.ActiveConfigs(cmd.Context(), usageType)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tMODEL\tPRIORITY\tPRIMARY")
			for _, c := range configs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", c.ID, c.Provider, c.Model, c.Priority, c.Primary)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&usageType, "usage-type", "u", "", "usage type (required)")
	_ = cmd.MarkFlagRequired("usage-type")
	return cmd
}
