// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/embeddedgo/bltools/blri/internal/bootheader"
	"github.com/embeddedgo/bltools/blri/internal/console"
	"github.com/embeddedgo/bltools/blri/internal/image"
	"github.com/embeddedgo/bltools/blri/internal/isp"
	"github.com/embeddedgo/bltools/blri/internal/settings"
	"github.com/embeddedgo/bltools/blri/internal/util"
)

const Descr = "write an image to the flash of a device over the serial ISP"

type Options struct {
	Port     string
	Baud     int
	Reset    bool
	NoVerify bool
	Console  bool
	Retries  int
	Quiet    bool
}

// ResolvePort returns name if not empty, next $BLRI_PORT and next the only
// serial port in the system.
func ResolvePort(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if name = settings.EnvPort(); name != "" {
		return name, nil
	}
	ports, err := isp.ListPorts()
	if err != nil {
		return "", err
	}
	switch len(ports) {
	case 0:
		return "", errors.New("no serial ports found")
	case 1:
		return ports[0].Name, nil
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return "", errors.Errorf(
		"more than one serial port, select one of: %s",
		strings.Join(names, ", "),
	)
}

// LoadImage reads a raw binary or an Intel HEX image.
func LoadImage(name string) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(name), ".hex") {
		return os.ReadFile(name)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	exe, err := image.ReadHex(f)
	if err != nil {
		return nil, errors.WithMessage(err, name)
	}
	return image.Extract(exe, image.DefaultPad)
}

// Program flashes img and, if o.Console is set, runs the console on the same
// serial link until the operator leaves it.
func Program(ctx context.Context, img []byte, o Options) error {
	if rep, err := bootheader.Check(img, bootheader.Options{}); err != nil {
		util.Warn("warning: %v", err)
	} else if rep.Changed() {
		util.Warn("warning: the boot header is not patched, the ROM may reject the image")
	}
	port, err := ResolvePort(o.Port)
	if err != nil {
		return err
	}
	opts := []isp.Option{
		isp.WithVerify(!o.NoVerify),
		isp.WithReset(o.Reset),
		isp.WithHandoff(o.Console),
	}
	if o.Baud > 0 {
		opts = append(opts, isp.WithHandshakeBaud(o.Baud))
	}
	if o.Retries > 0 {
		opts = append(opts, isp.WithRetries(o.Retries))
	}
	if !o.Quiet {
		opts = append(opts, isp.WithProgress(func(p isp.Progress) {
			util.Progress("flashing", p.Done, p.Total)
		}))
		util.Warn("flashing %d bytes on %s", len(img), port)
	}
	res, err := isp.NewClient(isp.SerialOpener(port), opts...).Flash(ctx, img)
	if err != nil {
		return err
	}
	if !o.Quiet {
		util.Warn("%v, flash id: %s", res.BootInfo, res.FlashID)
		if !o.NoVerify {
			util.Warn("verified sha256: %x", res.Digest)
		}
	}
	if !o.Console {
		return nil
	}
	util.Warn("console on %s at %d baud, Ctrl-] to exit", port, res.Baud)
	return console.Run(ctx, res.Transport, os.Stdin, os.Stdout)
}

// AddFlags defines the flags shared by the commands that flash.
func AddFlags(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.Port, "port", "", "serial `port`, $BLRI_PORT or the only port by default")
	fs.IntVar(&o.Baud, "baud", settings.EnvBaud(), "ISP `baud` rate, $BLRI_BAUD overrides the default")
	fs.BoolVar(&o.Reset, "reset", false, "reset the device after flashing")
	fs.BoolVar(&o.Console, "console", false, "open a console on the port after flashing")
}

func Main(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] IMAGE\n"+
				"IMAGE is a raw binary or an Intel HEX file (.hex).\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	var o Options
	AddFlags(fs, &o)
	fs.BoolVar(&o.NoVerify, "no-verify", false, "skip the sha256 read-back")
	fs.IntVar(&o.Retries, "retries", 0, "number of attempts of the handshake and of every chunk")
	fs.BoolVar(&o.Quiet, "quiet", false, "do not print diagnostic information")
	fs.Parse(args)
	if fs.NArg() != 1 {
		util.UsageErr(fs.Usage, "")
	}
	img, err := LoadImage(fs.Arg(0))
	util.FatalErr(cmd, err)
	util.FatalErr(cmd, Program(ctx, img, o))
}
