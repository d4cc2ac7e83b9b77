// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	mu       sync.Mutex
	out      bytes.Buffer // device to host
	in       bytes.Buffer // host to device
	closed   bool
	writeErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("closed")
	}
	if p.out.Len() == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer p.mu.Unlock()
	return p.out.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.in.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) sent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in.String()
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunEscape(t *testing.T) {
	port := new(fakePort)
	pr, pw := io.Pipe()
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), port, pr, &out)
	}()

	port.mu.Lock()
	port.out.WriteString("hello from device\r\n")
	port.mu.Unlock()
	assert.Eventually(t, func() bool {
		return out.String() == "hello from device\r\n"
	}, time.Second, time.Millisecond)

	_, err := pw.Write([]byte("help\r"))
	require.NoError(t, err)
	_, err = pw.Write([]byte("ls\x1dnot sent"))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not exit on escape")
	}
	assert.Equal(t, "help\rls", port.sent())
	assert.True(t, port.closed)
}

func TestRunCancel(t *testing.T) {
	port := new(fakePort)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Run(ctx, port, strings.NewReader(""), io.Discard)
	require.NoError(t, err)
	assert.True(t, port.closed)
}

func TestRunWriteError(t *testing.T) {
	port := &fakePort{writeErr: errors.New("unplugged")}

	err := Run(context.Background(), port, strings.NewReader("x"), io.Discard)
	assert.ErrorContains(t, err, "unplugged")
	assert.True(t, port.closed)
}
