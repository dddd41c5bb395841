// Copyright 2025 The layerkit Authors. SPDX-License-Identifier: Apache-2.0

// layerkit runs small demos of the layers catalog.
//
// Usage:
//
//	layerkit demo [-text "some text"] [-batch 10] [-length 5]
//	layerkit train [-checkpoint dir] [-set "hidden_dims=64;encoder=lstm"]
//
// Use -v=1 (a klog flag, before the sub-command) to log the shape of every layer as it is built.
package main

import (
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var commands = map[string]func(args []string) error{
	"demo":  runDemo,
	"train": runTrain,
}

func usage() {
	names := slices.Sorted(maps.Keys(commands))
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [klog flags] <%s> [flags]\n", os.Args[0], strings.Join(names, "|"))
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	command, found := commands[args[0]]
	if !found {
		klog.Errorf("unknown command %q", args[0])
		usage()
		os.Exit(2)
	}

	var err error
	if exception := exceptions.TryCatch[error](func() { err = command(args[1:]) }); exception != nil {
		err = exception
	}
	klog.Flush()
	if err != nil {
		klog.Errorf("%s failed: %+v", args[0], err)
		os.Exit(1)
	}
}
