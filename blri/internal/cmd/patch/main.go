// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package patch

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/bltools/blri/internal/bootheader"
	"github.com/embeddedgo/bltools/blri/internal/util"
)

const Descr = "fix the length, hash and CRC fields of the boot header of an image"

func Main(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] IMAGE [OUTPUT]\n"+
				"The image is patched in place if OUTPUT is omitted.\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	force := fs.Bool("f", false, "patch the image even if its magics, body offset or hash are bad")
	check := fs.Bool(
		"check", false,
		"only check the header, exit with status 1 if it needs patching",
	)
	fs.Parse(args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		util.UsageErr(fs.Usage, "")
	}
	in, out := fs.Arg(0), fs.Arg(1)
	if out == "" {
		out = in
	}
	img, err := os.ReadFile(in)
	util.FatalErr(cmd, err)
	opts := bootheader.Options{Force: *force}
	if *check {
		rep, err := bootheader.Check(img, opts)
		util.FatalErr(in, err)
		os.Stderr.WriteString(rep.String())
		if rep.Changed() {
			util.Fatal("%s: the boot header needs patching", in)
		}
		return
	}
	rep, err := bootheader.Patch(img, opts)
	util.FatalErr(in, err)
	os.Stderr.WriteString(rep.String())
	if !rep.Changed() && out == in {
		util.Warn("%s: nothing to patch", in)
		return
	}
	util.FatalErr(cmd, os.WriteFile(out, img, 0o644))
	util.Warn("patched image saved to %s", out)
}
