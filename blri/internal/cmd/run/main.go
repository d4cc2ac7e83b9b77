// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package run

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/bltools/blri/internal/cmd/elf2bin"
	"github.com/embeddedgo/bltools/blri/internal/cmd/flash"
	"github.com/embeddedgo/bltools/blri/internal/settings"
	"github.com/embeddedgo/bltools/blri/internal/util"
)

const (
	Descr        = "convert, patch and flash an executable, remembering the configuration"
	DescrDefault = "flash the executable of the saved configuration again"
)

// Replaced in tests.
var (
	program     = flash.Program
	resolvePort = flash.ResolvePort
)

// Execute converts the executable named by cfg, patches and flashes it.
func Execute(ctx context.Context, cfg settings.Config, buildDir string) error {
	exe, err := cfg.Executable(buildDir)
	if err != nil {
		return err
	}
	img, _, _, err := elf2bin.Convert(exe, elf2bin.Options{Patch: true})
	if err != nil {
		return err
	}
	return program(ctx, img, flash.Options{
		Port:    cfg.Port,
		Baud:    cfg.Baudrate,
		Reset:   cfg.Reset,
		Console: cfg.Console,
	})
}

func Main(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] EXECUTABLE\n"+
				"The target, profile and package are inferred from an EXECUTABLE\n"+
				"path of the form BUILD_DIR/TARGET/{debug,release}/PACKAGE.\n"+
				"Options:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	var o flash.Options
	flash.AddFlags(fs, &o)
	target := fs.String("target", "", "target `triple` of the build")
	release := fs.Bool("release", false, "the executable is a release build")
	pkg := fs.String("package", "", "`name` of the package")
	buildDir := fs.String(
		"build-dir", settings.BuildDir(),
		"build output `directory` that holds the saved configuration",
	)
	fs.Parse(args)
	if fs.NArg() != 1 {
		util.UsageErr(fs.Usage, "")
	}
	exe := fs.Arg(0)
	cur := settings.Config{
		BinaryPath: exe,
		Baudrate:   o.Baud,
		Reset:      o.Reset,
		Console:    o.Console,
	}
	if t, rel, p, ok := settings.Infer(exe); ok {
		cur.Target, cur.Release, cur.Package = t, rel, p
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			cur.Target = *target
		case "release":
			cur.Release = *release
		case "package":
			cur.Package = *pkg
		}
	})
	cur.Port = o.Port
	if cur.Port == "" {
		cur.Port = settings.EnvPort()
	}
	r := settings.Reconciler{
		Store:    settings.NewFileStore(*buildDir),
		Prompter: settings.NewTermPrompter(),
		Complete: completePort,
	}
	out, err := flashRun(ctx, &r, cur, *buildDir)
	util.FatalErr(cmd, err)
	if out.Persist {
		util.Warn("configuration saved:\n%s", out.Config)
	}
}

// completePort uses the saved port if neither -port nor $BLRI_PORT selects
// one, and the only serial port of the system if nothing is saved.
func completePort(cur, saved *settings.Config) (err error) {
	if cur.Port != "" {
		return nil
	}
	if saved != nil && saved.Port != "" {
		cur.Port = saved.Port
		return nil
	}
	cur.Port, err = resolvePort("")
	return err
}

// flashRun executes the reconciled configuration and saves it only after
// a successful flash.
func flashRun(ctx context.Context, r *settings.Reconciler, cur settings.Config, buildDir string) (settings.Outcome, error) {
	return r.Run(cur, func(cfg settings.Config) error {
		return Execute(ctx, cfg, buildDir)
	})
}

// MainDefault flashes the saved configuration without asking questions.
func MainDefault(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	buildDir := fs.String(
		"build-dir", settings.BuildDir(),
		"build output `directory` that holds the saved configuration",
	)
	fs.Parse(args)
	if fs.NArg() != 0 {
		util.UsageErr(fs.Usage, "")
	}
	cfg, err := settings.LoadSaved(settings.NewFileStore(*buildDir))
	util.FatalErr(cmd, err)
	util.Warn("using the saved configuration:\n%s", cfg)
	util.FatalErr(cmd, Execute(ctx, cfg, *buildDir))
}
