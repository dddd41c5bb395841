// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/layerkit/layerkit/examples/tagger"
)

func runTrain(args []string) error {
	ctx := tagger.CreateDefaultContext()
	flags := flag.NewFlagSet("train", flag.ContinueOnError)
	checkpointDir := flags.String("checkpoint", "", "Directory to save and restore the model. If empty the model is not saved.")
	settings := flags.String("set", "", "Hyperparameters to set, e.g. \"encoder=lstm;hidden_dims=64\". Available:\n"+
		commandline.SprintContextSettings(ctx))
	verbosity := flags.Int("verbosity", 1, "Verbosity: -1 quiet, 0 progress bar only, 1 settings and evaluation.")
	if err := flags.Parse(args); err != nil {
		return err
	}
	paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
	if err != nil {
		return err
	}

	if *checkpointDir != "" {
		must.M(os.MkdirAll(*checkpointDir, 0o755))
	}
	backend := backends.New()
	result, err := tagger.TrainModel(backend, ctx, *checkpointDir, paramsSet, *verbosity)
	if err != nil {
		return err
	}

	table := newPlainTable()
	table.Row("global step", humanize.Comma(int64(result.GlobalStep)))
	table.Row("train loss", fmt.Sprintf("%.4f", result.TrainLoss))
	table.Row("eval loss", fmt.Sprintf("%.4f", result.EvalLoss))
	table.Row("duration", result.Duration.Round(time.Millisecond).String())
	if result.Checkpoint != "" {
		table.Row("checkpoint", result.Checkpoint)
	}
	fmt.Println(titleStyle.Render("Training"))
	fmt.Println(table.Render())
	return nil
}
