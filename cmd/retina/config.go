package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	retina "retina/src"
)

func newConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or save the default configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := retina.DefaultConfig()
			if out != "" {
				return cfg.Save(out)
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.json>",
		Short: "Load a configuration and check every field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := retina.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := retina.ValidateConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %s schedule, %d epochs)\n",
				args[0], cfg.Control.Optimizer, cfg.Control.LRSchedulerType, cfg.Training.NumEpochs)
			return nil
		},
	}
}
