package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	retina "retina/src"
)

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %q", path)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return errors.Wrapf(err, "failed to encode %q", path)
	}
	return f.Close()
}

func newSkewCmd() *cobra.Command {
	var (
		angle    float64
		incWidth bool
	)
	cmd := &cobra.Command{
		Use:   "skew <in> <out.png>",
		Short: "Shear an image horizontally by an angle in radians",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			out := retina.SkewImage(img, angle, incWidth)
			b := out.Bounds()
			fmt.Fprintf(cmd.OutOrStdout(), "%dx%d -> %dx%d\n", img.Bounds().Dx(), img.Bounds().Dy(), b.Dx(), b.Dy())
			return writePNG(args[1], out)
		},
	}
	cmd.Flags().Float64Var(&angle, "angle", 0.2, "skew angle in radians")
	cmd.Flags().BoolVar(&incWidth, "inc-width", false, "keep the widened canvas instead of cropping")
	return cmd
}

func newAugmentCmd() *cobra.Command {
	var (
		split      string
		seed       int64
		configPath string
	)
	cmd := &cobra.Command{
		Use:   "augment <in> <out.png>",
		Short: "Apply the image stage of a split's augmentation pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			p, err := retina.PipelineFor(cfg, split)
			if err != nil {
				return err
			}
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return writePNG(args[1], p.Augment(img, rand.New(rand.NewSource(seed))))
		},
	}
	cmd.Flags().StringVar(&split, "split", "train", "pipeline to apply: train, val or test")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	addConfigFlag(cmd.Flags(), &configPath)
	return cmd
}
