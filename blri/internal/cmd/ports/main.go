// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ports

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/embeddedgo/bltools/blri/internal/isp"
	"github.com/embeddedgo/bltools/blri/internal/util"
)

const Descr = "list the serial ports"

func Main(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s\n", cmd)
	}
	fs.Parse(args)
	if fs.NArg() != 0 {
		util.UsageErr(fs.Usage, "")
	}
	ports, err := isp.ListPorts()
	util.FatalErr(cmd, err)
	if len(ports) == 0 {
		util.Fatal("no serial ports found")
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, p := range ports {
		if p.USB {
			fmt.Fprintf(w, "%s\t%s:%s\t%s\t%s\n", p.Name, p.VID, p.PID, p.Serial, p.Product)
		} else {
			fmt.Fprintf(w, "%s\n", p.Name)
		}
	}
	w.Flush()
}
