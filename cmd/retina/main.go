// Command retina inspects and exercises the DRNet training setup: it prints
// and validates configurations, previews augmentations, reports class
// rebalancing and trains the built-in linear probe.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	retina "retina/src"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "retina",
		Short:         "DRNet training configuration and augmentation tool",
		Version:       retina.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			retina.SetLogger(retina.NewTextLogger(cmd.ErrOrStderr()))
			retina.SetDebug(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newConfigCmd(),
		newValidateCmd(),
		newSkewCmd(),
		newAugmentCmd(),
		newRebalanceCmd(),
		newProbeCmd(),
	)
	return root
}

// loadConfig returns the default config when path is empty
func loadConfig(path string) (retina.Config, error) {
	if path == "" {
		return retina.DefaultConfig(), nil
	}
	cfg, err := retina.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	return cfg, retina.ValidateConfig(cfg)
}

func addConfigFlag(fs *pflag.FlagSet, path *string) {
	fs.StringVarP(path, "config", "c", "", "configuration file (default config if empty)")
}
