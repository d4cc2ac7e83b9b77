// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package console implements a pass-through terminal for the serial port
// that was used to flash the device.
package console

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Escape (Ctrl-]) typed on the input ends the session.
const Escape = 0x1d

const pollInterval = 100 * time.Millisecond

// Port is the device link. Read must return (0, nil) on timeout.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Run copies the device output to out and in to the device until Escape is
// read from in or ctx is done. It closes port before it returns. If in is a
// terminal it is switched to raw mode for the duration of the session.
func Run(ctx context.Context, port Port, in io.Reader, out io.Writer) (err error) {
	defer func() {
		if cerr := port.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "console: close")
		}
	}()
	if err := port.SetReadTimeout(pollInterval); err != nil {
		return errors.Wrap(err, "console")
	}
	if f, ok := in.(*os.File); ok {
		restore, err := makeRaw(int(f.Fd()))
		if err != nil {
			glog.V(1).Infof("console: raw mode: %v", err)
		} else {
			defer restore()
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inErr := make(chan error, 1)
	go func() {
		stop, err := forward(ctx, port, in)
		inErr <- err
		if stop {
			cancel()
		}
	}()
	buf := make([]byte, 4096)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return errors.Wrap(err, "console: read")
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return errors.Wrap(err, "console")
		}
	}
	select {
	case err := <-inErr:
		return err
	default:
		// The input goroutine is blocked in Read and ends with the process.
		return nil
	}
}

// forward copies in to the port up to the Escape byte. It reports stop if
// the session must end. EOF on in does not end the session.
func forward(ctx context.Context, port io.Writer, in io.Reader) (stop bool, err error) {
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, rerr := in.Read(buf)
		p := buf[:n]
		esc := bytes.IndexByte(p, Escape)
		if esc >= 0 {
			p = p[:esc]
		}
		if len(p) > 0 {
			if _, err := port.Write(p); err != nil {
				return true, errors.Wrap(err, "console: write")
			}
		}
		switch {
		case esc >= 0:
			return true, nil
		case rerr == io.EOF:
			return false, nil
		case rerr != nil:
			return true, errors.Wrap(rerr, "console: input")
		}
	}
	return false, nil
}
