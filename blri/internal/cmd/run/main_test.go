// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package run

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedgo/bltools/blri/internal/bootheader"
	"github.com/embeddedgo/bltools/blri/internal/cmd/flash"
	"github.com/embeddedgo/bltools/blri/internal/elftest"
	"github.com/embeddedgo/bltools/blri/internal/settings"
)

// programmer records the images passed to program.
type programmer struct {
	img  []byte
	opts flash.Options
	err  error
	n    int
}

func (p *programmer) program(ctx context.Context, img []byte, o flash.Options) error {
	p.img, p.opts = img, o
	p.n++
	return p.err
}

func stub(t *testing.T, p *programmer, ports ...string) {
	program, resolvePort = p.program, func(name string) (string, error) {
		switch len(ports) {
		case 0:
			return "", errors.New("no serial ports found")
		case 1:
			return ports[0], nil
		}
		return "", errors.New("more than one serial port")
	}
	t.Cleanup(func() {
		program, resolvePort = flash.Program, flash.ResolvePort
	})
}

// firmware writes an executable into the layout of a build directory and
// returns the configuration that names it.
func firmware(t *testing.T, buildDir string) settings.Config {
	cfg := settings.Config{
		Target:   "riscv64imac-unknown-none-elf",
		Package:  "blinky",
		Port:     "/dev/ttyUSB1",
		Baudrate: 115200,
		Reset:    true,
	}
	exe := settings.BinaryPath(buildDir, cfg.Target, cfg.Release, cfg.Package)
	cfg.BinaryPath = exe
	require.NoError(t, os.MkdirAll(filepath.Dir(exe), 0o755))
	text := bytes.Repeat([]byte{0x6f, 0x00, 0x00, 0x00}, 0x20)
	require.NoError(t, os.WriteFile(exe, elftest.Firmware(text), 0o755))
	return cfg
}

func TestExecute(t *testing.T) {
	p := new(programmer)
	stub(t, p)
	dir := t.TempDir()
	cfg := firmware(t, dir)

	require.NoError(t, Execute(context.Background(), cfg, dir))
	require.Equal(t, 1, p.n)
	assert.Equal(t, flash.Options{Port: "/dev/ttyUSB1", Baud: 115200, Reset: true}, p.opts)
	le := binary.LittleEndian
	assert.EqualValues(t, len(p.img), le.Uint32(p.img[0x8c:]))
	assert.Equal(t, crc32.ChecksumIEEE(p.img[:0x15c]), le.Uint32(p.img[0x15c:]))
	rep, err := bootheader.Check(p.img, bootheader.Options{})
	require.NoError(t, err)
	assert.False(t, rep.Changed())
}

func TestExecuteMissingExecutable(t *testing.T) {
	p := new(programmer)
	stub(t, p)
	dir := t.TempDir()
	cfg := settings.Config{BinaryPath: filepath.Join(dir, "missing")}

	require.Error(t, Execute(context.Background(), cfg, dir))
	assert.Zero(t, p.n)
}

func TestRunSavedPort(t *testing.T) {
	p := new(programmer)
	// Two ports in the system, none selected on the command line.
	stub(t, p, "/dev/ttyUSB0", "/dev/ttyUSB1")
	dir := t.TempDir()
	saved := firmware(t, dir)
	store := settings.NewFileStore(dir)
	require.NoError(t, store.Save(saved))

	cur := saved
	cur.Port = ""
	r := settings.Reconciler{Store: store, Complete: completePort}
	out, err := flashRun(context.Background(), &r, cur, dir)
	require.NoError(t, err)
	assert.False(t, out.Persist)
	assert.Equal(t, saved, out.Config)
	assert.Equal(t, "/dev/ttyUSB1", p.opts.Port)
}

func TestRunFirstPort(t *testing.T) {
	p := new(programmer)
	stub(t, p, "/dev/ttyACM0")
	dir := t.TempDir()
	cur := firmware(t, dir)
	cur.Port = ""

	r := settings.Reconciler{Store: settings.NewFileStore(dir), Complete: completePort}
	out, err := flashRun(context.Background(), &r, cur, dir)
	require.NoError(t, err)
	assert.True(t, out.Persist)
	assert.Equal(t, "/dev/ttyACM0", p.opts.Port)
	got, err := settings.LoadSaved(r.Store)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", got.Port)

	stub(t, new(programmer))
	cur.Port = ""
	r = settings.Reconciler{Store: settings.NewFileStore(t.TempDir()), Complete: completePort}
	_, err = flashRun(context.Background(), &r, cur, dir)
	assert.ErrorContains(t, err, "no serial ports")
}

func TestRunFailureNotSaved(t *testing.T) {
	p := &programmer{err: errors.New("isp: handshake: no answer after 3 attempts")}
	stub(t, p)
	dir := t.TempDir()
	cur := firmware(t, dir)
	store := settings.NewFileStore(dir)

	r := settings.Reconciler{Store: store, Complete: completePort}
	_, err := flashRun(context.Background(), &r, cur, dir)
	require.ErrorIs(t, err, p.err)
	assert.Equal(t, 1, p.n)
	_, err = os.Stat(store.Path)
	assert.True(t, os.IsNotExist(err), "settings written after a failed flash")
	_, err = settings.LoadSaved(store)
	assert.ErrorIs(t, err, settings.ErrNoSavedConfig)
}
