// Package retina configures and feeds the DRNet diabetic-retinopathy
// classifier.
//
// Retina keeps the training setup explicit: data paths, optimizer and
// learning-rate schedule choices, layer freezing and the augmentation
// pipelines are all plain structs that are validated before use. The model
// itself is supplied by the caller through the Classifier interface.
//
// Basic usage:
//
//	cfg := retina.DefaultConfig()
//	if err := retina.ValidateConfig(cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	trainSet, err := retina.NewTrainDataset(cfg.Data, cfg.Model.Kwargs.NumClasses)
//	if err != nil {
//		log.Fatal(err)
//	}
//	train, val, err := trainSet.Split(0.1, 42)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	solver, err := retina.NewSolver(cfg, model)
//	if err != nil {
//		log.Fatal(err)
//	}
//	history, err := solver.Fit(ctx,
//		retina.NewLoader(train, retina.TrainTransforms(cfg), cfg.Data, retina.LoaderConfig{
//			Rebalance: true,
//			Seed:      42,
//		}),
//		retina.NewLoader(val, retina.ValTransforms(cfg), cfg.Data, retina.LoaderConfig{
//			Rebalance: false,
//			Seed:      43,
//		}),
//	)
package retina

import (
	"io"
	"log/slog"
)

// Version of the retina package
const Version = "1.0.0"

// DebugMode enables debug level logging
var DebugMode = false

var logLevel = new(slog.LevelVar)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// SetDebug enables or disables debug mode
func SetDebug(enabled bool) {
	DebugMode = enabled
	if enabled {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
}

// SetLogger replaces the package logger. A nil logger silences output.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = l
}

// NewTextLogger returns a text logger writing to w whose level follows SetDebug.
func NewTextLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
