// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Blri turns executables built for the Bouffalo Lab chips into flashable
// images and writes them to the device over the serial ISP of the mask ROM.
package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"

	"github.com/golang/glog"

	"github.com/embeddedgo/bltools/blri/internal/cmd/elf2bin"
	"github.com/embeddedgo/bltools/blri/internal/cmd/flash"
	"github.com/embeddedgo/bltools/blri/internal/cmd/patch"
	"github.com/embeddedgo/bltools/blri/internal/cmd/ports"
	"github.com/embeddedgo/bltools/blri/internal/cmd/run"
)

type tool struct {
	descr string
	main  func(ctx context.Context, cmd string, args []string)
}

var tools = map[string]tool{
	"default": {run.DescrDefault, run.MainDefault},
	"elf2bin": {elf2bin.Descr, elf2bin.Main},
	"flash":   {flash.Descr, flash.Main},
	"patch":   {patch.Descr, patch.Main},
	"ports":   {ports.Descr, ports.Main},
	"run":     {run.Descr, run.Main},
}

func printToolList() {
	names := slices.Sorted(maps.Keys(tools))
	maxLen := 0
	for _, k := range names {
		if maxLen < len(k) {
			maxLen = len(k)
		}
	}
	uw := os.Stderr
	uw.WriteString("Usage:\n  blri [-v LEVEL] COMMAND [ARGUMENTS]\n\n")
	uw.WriteString("Available commands:\n")
	for _, name := range names {
		fmt.Fprintf(uw, "  %*s  %s\n", maxLen, name, tools[name].descr)
	}
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Usage = printToolList
	flag.Parse()
	defer glog.Flush()
	if flag.NArg() < 1 {
		printToolList()
		os.Exit(2)
	}
	name := flag.Arg(0)
	tool, ok := tools[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		printToolList()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	tool.main(ctx, name, flag.Args()[1:])
}
