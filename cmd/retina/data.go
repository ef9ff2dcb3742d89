package main

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	retina "retina/src"
)

func newRebalanceCmd() *cobra.Command {
	var (
		configPath string
		strategy   string
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Show per-class sample counts before and after rebalancing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strategy") {
				cfg.Data.RebalanceStrategy = retina.RebalanceStrategy(strategy)
			}
			labelMap, err := retina.ReadLabels(cfg.Data.LabelPath, cfg.Model.Kwargs.NumClasses)
			if err != nil {
				return err
			}
			labels := lo.Values(labelMap)
			slices.Sort(labels)

			idx, err := retina.Rebalance(labels, cfg.Data.RebalanceStrategy, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}
			before := retina.ClassCounts(labels, lo.Range(len(labels)))
			after := retina.ClassCounts(labels, idx)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "strategy %s\n", cfg.Data.RebalanceStrategy)
			fmt.Fprintf(w, "%-6s %8s %8s\n", "class", "before", "after")
			classes := lo.Keys(before)
			slices.Sort(classes)
			for _, c := range classes {
				fmt.Fprintf(w, "%-6d %8d %8d\n", c, before[c], after[c])
			}
			fmt.Fprintf(w, "%-6s %8d %8d\n", "total", len(labels), len(idx))
			return nil
		},
	}
	addConfigFlag(cmd.Flags(), &configPath)
	cmd.Flags().StringVar(&strategy, "strategy", "", "override rebalance_strategy: even, posneg, almost_even, none")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func newProbeCmd() *cobra.Command {
	var (
		configPath string
		hidden     int
		valSplit   float64
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Train the linear probe baseline and write a submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()

			model, err := retina.NewLinearProbe(retina.LinearProbeConfig{
				Hidden:     hidden,
				NumClasses: cfg.Model.Kwargs.NumClasses,
				Seed:       seed,
			})
			if err != nil {
				return err
			}
			solver, err := retina.NewSolver(cfg, model)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), solver.Params().FreezeSummary())

			if cfg.Model.Train {
				all, err := retina.NewTrainDataset(cfg.Data, cfg.Model.Kwargs.NumClasses)
				if err != nil {
					return err
				}
				trainSet, valSet, err := all.Split(valSplit, seed)
				if err != nil {
					return err
				}
				var val *retina.Loader
				if valSet.Len() > 0 {
					val = retina.NewLoader(valSet, retina.ValTransforms(cfg), cfg.Data, retina.LoaderConfig{Seed: seed + 1})
				}
				_, err = solver.Fit(ctx,
					retina.NewLoader(trainSet, retina.TrainTransforms(cfg), cfg.Data, retina.LoaderConfig{Rebalance: true, Seed: seed}),
					val,
				)
			} else {
				_, err = solver.Fit(ctx, nil, nil)
			}
			if err != nil {
				return err
			}

			testSet, err := retina.NewTestDataset(cfg.Data)
			if err != nil {
				return err
			}
			preds, err := solver.Predict(ctx,
				retina.NewLoader(testSet, retina.TestTransforms(cfg), cfg.Data, retina.LoaderConfig{Seed: seed + 2}))
			if err != nil {
				return err
			}
			if err := retina.WriteSubmission(cfg.Data.SubmissionFile, preds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d predictions to %s\n", len(preds), cfg.Data.SubmissionFile)
			return nil
		},
	}
	addConfigFlag(cmd.Flags(), &configPath)
	cmd.Flags().IntVar(&hidden, "hidden", 16, "hidden units of the probe")
	cmd.Flags().Float64Var(&valSplit, "val-split", 0.1, "fraction of labelled images held out for validation")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	return cmd
}
