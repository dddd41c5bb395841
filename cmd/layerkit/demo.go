// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"math/rand/v2"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/layerkit/layerkit/chain"
	"github.com/layerkit/layerkit/internal/tokens"
	"github.com/layerkit/layerkit/layers"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type demoConfig struct {
	text          string
	encoding      string
	batchSize     int
	length        int
	vocabSize     int
	embeddingDim  int
	hiddenDims    int
	withSummaries bool
}

func runDemo(args []string) error {
	var cfg demoConfig
	flags := flag.NewFlagSet("demo", flag.ContinueOnError)
	flags.StringVar(&cfg.text, "text", "", "Text to tokenize and feed to the layers. If empty, random word ids are used.")
	flags.StringVar(&cfg.encoding, "encoding", tokens.DefaultEncoding, "tiktoken encoding used to split -text.")
	flags.IntVar(&cfg.batchSize, "batch", 10, "Batch size of the random word ids.")
	flags.IntVar(&cfg.length, "length", 5, "Sequence length of the random word ids.")
	flags.IntVar(&cfg.vocabSize, "vocab", 100, "Vocabulary size.")
	flags.IntVar(&cfg.embeddingDim, "embedding_dim", 32, "Embedding dimension.")
	flags.IntVar(&cfg.hiddenDims, "hidden_dims", 16, "Recurrent layer hidden dimensions.")
	flags.BoolVar(&cfg.withSummaries, "summaries", false, "Log the summaries of the layers' variables.")
	if err := flags.Parse(args); err != nil {
		return err
	}

	wordIds, lengths, err := demoInputs(cfg)
	if err != nil {
		return err
	}
	backend := backends.New()
	ctx := context.New()
	ctx.SetParam(layers.ParamSummary, cfg.withSummaries)
	var report []*chain.Layer
	outputs := context.ExecOnceN(backend, ctx, func(ctx *context.Context, wordIds, lengths *graph.Node) []*graph.Node {
		report = []*chain.Layer{
			layers.Identity(ctx),
			layers.Embedding(ctx, cfg.vocabSize, cfg.embeddingDim).Done(),
			layers.Recurrent(ctx).HiddenDims(cfg.hiddenDims).SequenceLength(lengths).Done(),
			layers.Dense(ctx, 2).Done(),
			layers.Softmax(ctx, nil),
		}
		embedded := chain.Chain(wordIds, report[0], report[1])
		encoded := chain.Chain(embedded, report[2], report[3], report[4])
		return []*graph.Node{embedded, encoded}
	}, wordIds, lengths)
	klog.V(1).Infof("word ids: %s", wordIds)

	fmt.Println(titleStyle.Render("Outputs"))
	fmt.Printf("  embedded: %s\n", outputs[0].Shape())
	fmt.Printf("  encoded:  %s\n", outputs[1].Shape())
	if cfg.text != "" {
		fmt.Printf("  probabilities of the first token: %v\n", firstTokenProbabilities(outputs[1]))
	}

	fmt.Println(titleStyle.Render("Layers"))
	fmt.Println(layersTable(report).Render())

	fmt.Println(titleStyle.Render("Variables"))
	table, numParams := variablesTable(ctx)
	fmt.Println(table.Render())
	fmt.Printf("  %s parameters\n", humanize.Comma(int64(numParams)))
	return nil
}

// demoInputs returns the word ids shaped [batchSize, length] and their lengths, either from
// the tokenized text or random.
func demoInputs(cfg demoConfig) (wordIds, lengths *tensors.Tensor, err error) {
	if cfg.vocabSize < 2 {
		return nil, nil, errors.Errorf("-vocab must be >= 2, got %d", cfg.vocabSize)
	}
	if cfg.text != "" {
		vocab, err := tokens.New(cfg.encoding, cfg.vocabSize)
		if err != nil {
			return nil, nil, err
		}
		ids, lens := vocab.Batch([]string{cfg.text}, 0)
		return tensors.FromValue(ids), tensors.FromValue(lens), nil
	}
	if cfg.batchSize < 1 || cfg.length < 1 {
		return nil, nil, errors.Errorf("-batch and -length must be >= 1, got %d and %d", cfg.batchSize, cfg.length)
	}
	ids := make([][]int32, cfg.batchSize)
	lens := make([]int32, cfg.batchSize)
	for ii := range ids {
		ids[ii] = make([]int32, cfg.length)
		for pos := range ids[ii] {
			ids[ii][pos] = int32(rand.IntN(cfg.vocabSize))
		}
		lens[ii] = int32(cfg.length)
	}
	return tensors.FromValue(ids), tensors.FromValue(lens), nil
}

func firstTokenProbabilities(encoded *tensors.Tensor) []float32 {
	values, ok := encoded.Value().([][][]float32)
	if !ok || len(values) == 0 || len(values[0]) == 0 {
		return nil
	}
	return values[0][0]
}
