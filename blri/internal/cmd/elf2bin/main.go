// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf2bin

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/embeddedgo/bltools/blri/internal/bootheader"
	"github.com/embeddedgo/bltools/blri/internal/image"
	"github.com/embeddedgo/bltools/blri/internal/util"
)

const Descr = "convert an ELF file to a raw binary image"

type Options struct {
	Pad      byte
	Inc      string // BIN1:ADDR1[,BIN2:ADDR2[,...]]
	ZeroFill bool
	Patch    bool
	Force    bool
}

// Convert reads the ELF file and returns its raw binary image with the load
// address of the first byte. If o.Patch is set the boot header is patched
// and its report is returned.
func Convert(name string, o Options) (img []byte, base uint64, rep *bootheader.Report, err error) {
	exe, err := image.ReadELFFile(name, image.ReadOptions{ZeroFill: o.ZeroFill})
	if err != nil {
		return nil, 0, nil, err
	}
	if o.Inc != "" {
		ss, err := image.ReadBins(o.Inc)
		if err != nil {
			return nil, 0, nil, err
		}
		exe.Segments = append(exe.Segments, ss...)
	}
	img, err = image.Extract(exe, o.Pad)
	if err != nil {
		return nil, 0, nil, errors.WithMessage(err, name)
	}
	base, _ = exe.Base()
	if o.Patch {
		rep, err = bootheader.Patch(img, bootheader.Options{Force: o.Force})
		if err != nil {
			return nil, 0, nil, errors.WithMessage(err, "patch")
		}
	}
	return img, base, rep, nil
}

// WriteImage writes img to the named file, in the Intel HEX format if the
// name ends with .hex.
func WriteImage(name string, base uint64, img []byte) error {
	if !strings.EqualFold(filepath.Ext(name), ".hex") {
		return os.WriteFile(name, img, 0o644)
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	err = image.WriteHex(f, base, img)
	if err1 := f.Close(); err == nil {
		err = err1
	}
	return err
}

func Main(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] ELF\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	out := fs.String(
		"o", "",
		"output `file`, ELF with the .bin extension by default,\n"+
			"the .hex extension selects the Intel HEX format",
	)
	patch := fs.Bool("patch", false, "patch the boot header of the image")
	force := fs.Bool("f", false, "patch the image even if its magics, body offset or hash are bad")
	pad := fs.Uint(
		"pad", image.DefaultPad,
		"pad `byte` used to fill gaps between sections",
	)
	inc := fs.String(
		"inc", "",
		"binary files to be included BIN1:ADDR1[,BIN2:ADDR2[,...]]",
	)
	bss := fs.Bool("bss", false, "include the zero-filled sections (.bss)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		util.UsageErr(fs.Usage, "")
	}
	if *pad > 0xff {
		util.UsageErr(fs.Usage, "bad pad byte: %#x", *pad)
	}
	elf, bin := util.InOutFiles(fs.Arg(0), ".elf", *out, ".bin")
	img, base, rep, err := Convert(elf, Options{
		Pad:      byte(*pad),
		Inc:      *inc,
		ZeroFill: *bss,
		Patch:    *patch,
		Force:    *force,
	})
	util.FatalErr(cmd, err)
	if rep != nil && rep.Changed() {
		os.Stderr.WriteString(rep.String())
	}
	util.FatalErr(cmd, WriteImage(bin, base, img))
	util.Warn("%s: %d bytes at %#x saved to %s", elf, len(img), base, bin)
}
