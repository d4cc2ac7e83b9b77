// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package isp implements the serial in-system programming protocol of the
// Bouffalo Lab mask ROM bootloader.
package isp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

type State int

const (
	Disconnected State = iota
	Handshaking
	Ready
	Transferring
	Verifying
	Done
	Errored
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Handshaking:  "handshaking",
	Ready:        "ready",
	Transferring: "transferring",
	Verifying:    "verifying",
	Done:         "done",
	Errored:      "errored",
}

func (s State) String() string {
	if uint(s) < uint(len(stateNames)) {
		return stateNames[s]
	}
	return "unknown"
}

// pollInterval bounds a single transport read so the cancellation of the
// context is noticed quickly.
const pollInterval = 50 * time.Millisecond

// Client flashes images to devices reachable with its Opener.
type Client struct {
	open Opener
	cfg  Config
}

func NewClient(open Opener, opts ...Option) *Client {
	c := &Client{open: open, cfg: defaultConfig()}
	for _, opt := range opts {
		opt(&c.cfg)
	}
	if c.cfg.Retries < 1 {
		c.cfg.Retries = 1
	}
	return c
}

type Result struct {
	BootInfo *BootInfo
	FlashID  string
	Size     int
	Baud     int
	Retries  int      // retransmitted chunks
	Digest   [32]byte // SHA-256 of the image

	// Transport is the open link to the device if the client was created
	// with WithHandoff. The caller must close it.
	Transport Transport
}

// session is the state of one Flash call.
type session struct {
	cfg Config
	img []byte
	t   Transport

	open        Opener
	state       State
	baud        int
	handshake   []byte // last answer to the sync burst
	bootInfo    *BootInfo
	flashID     string
	seq         int // offset of the next chunk
	awaitingAck bool
	retries     int
}

// Flash writes img to the flash of the device and optionally verifies it.
// The transport is closed on every return path except a successful flash
// with handoff requested.
func (c *Client) Flash(ctx context.Context, img []byte) (res *Result, err error) {
	if len(img) == 0 {
		return nil, errors.New("isp: empty image")
	}
	if uint64(c.cfg.FlashAddr)+uint64(len(img)) > 1<<32 {
		return nil, errors.Errorf("isp: image does not fit below 4 GiB")
	}
	s := &session{cfg: c.cfg, img: img, open: c.open, state: Disconnected}
	transitions := map[State]func(context.Context) (State, error){
		Disconnected: s.connect,
		Handshaking:  s.handshakeStep,
		Ready:        s.prepare,
		Transferring: s.transfer,
		Verifying:    s.verify,
	}
	defer func() {
		if s.t != nil && (err != nil || !s.cfg.Handoff) {
			if cerr := s.t.Close(); cerr != nil && err == nil {
				err = &TransportError{"close", cerr}
			}
			if res != nil && err != nil {
				res = nil
			}
		}
	}()
	for s.state != Done {
		next, err := transitions[s.state](ctx)
		if err != nil {
			glog.V(1).Infof("isp: %s -> %s: %v", s.state, Errored, err)
			s.state = Errored
			return nil, err
		}
		glog.V(1).Infof("isp: %s -> %s", s.state, next)
		s.state = next
	}
	if s.cfg.Reset {
		if err := s.reset(); err != nil {
			return nil, err
		}
	}
	res = &Result{
		BootInfo: s.bootInfo,
		FlashID:  s.flashID,
		Size:     len(img),
		Baud:     s.baud,
		Retries:  s.retries,
		Digest:   sha256.Sum256(img),
	}
	if s.cfg.Handoff {
		res.Transport = s.t
	}
	return res, nil
}

func (s *session) connect(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return Errored, err
	}
	t, err := s.open(s.cfg.HandshakeBaud)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{"open", err}
		}
		return Errored, err
	}
	s.t = t
	s.baud = s.cfg.HandshakeBaud
	if err := t.SetReadTimeout(pollInterval); err != nil {
		return Errored, &TransportError{"set read timeout", err}
	}
	return Handshaking, nil
}

// handshakeStep sends the sync burst until the mask ROM answers "OK". A
// silent device gives HandshakeTimeoutError, a device that keeps answering
// something else gives HandshakeRejectedError.
func (s *session) handshakeStep(ctx context.Context) (State, error) {
	sync := bytes.Repeat([]byte{syncByte}, syncLen)
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if s.cfg.USBWake {
			if err := s.write("write usb wake", USBWake); err != nil {
				return Errored, err
			}
			if err := sleep(ctx, 50*time.Millisecond); err != nil {
				return Errored, err
			}
		}
		if err := s.write("write sync", sync); err != nil {
			return Errored, err
		}
		var ans [2]byte
		n, err := s.readFull(ctx, ans[:], s.cfg.HandshakeTimeout)
		s.handshake = append(s.handshake[:0], ans[:n]...)
		switch {
		case err == nil && ans == statusOK:
			glog.V(1).Infof("isp: handshake %q after %d attempt(s)", s.handshake, attempt)
			return Ready, s.chipHandshake(ctx)
		case err == nil:
			lastErr = &HandshakeRejectedError{Response: bytes.Clone(s.handshake)}
		case err == errTimeout:
			if n > 0 {
				glog.V(1).Infof("isp: partial handshake answer %q", s.handshake)
			}
			lastErr = &HandshakeTimeoutError{}
		default:
			return Errored, err
		}
		glog.V(1).Infof("isp: handshake attempt %d: %v", attempt, lastErr)
		if err := s.purge(); err != nil {
			return Errored, err
		}
	}
	switch e := lastErr.(type) {
	case *HandshakeRejectedError:
		e.Attempts = s.cfg.Retries
	case *HandshakeTimeoutError:
		e.Attempts = s.cfg.Retries
	}
	return Errored, lastErr
}

func (s *session) chipHandshake(ctx context.Context) error {
	if len(s.cfg.ChipHandshake) == 0 {
		return nil
	}
	if err := s.write("write chip handshake", s.cfg.ChipHandshake); err != nil {
		return err
	}
	if err := sleep(ctx, 20*time.Millisecond); err != nil {
		return err
	}
	return s.purge()
}

// prepare reads the boot info, switches to the transfer baud rate,
// configures the flash and erases the area the image will occupy.
func (s *session) prepare(ctx context.Context) (State, error) {
	p, err := s.command(ctx, cmdGetBootInfo, true, s.cfg.AckTimeout)
	if err != nil {
		return Errored, errors.WithMessage(err, "get boot info")
	}
	if s.bootInfo, err = parseBootInfo(p); err != nil {
		return Errored, err
	}
	glog.V(1).Infof("isp: %v", s.bootInfo)

	if baud := s.cfg.TransferBaud; baud > 0 && baud != s.baud {
		_, err = s.command(ctx, cmdChangeRate, false, s.cfg.AckTimeout,
			u32(uint32(s.baud)), u32(uint32(baud)))
		if err != nil {
			return Errored, errors.WithMessage(err, "change baud rate")
		}
		if err := s.t.SetBaudRate(baud); err != nil {
			return Errored, &TransportError{"set baud rate", err}
		}
		s.baud = baud
		if err := sleep(ctx, 10*time.Millisecond); err != nil {
			return Errored, err
		}
		if err := s.purge(); err != nil {
			return Errored, err
		}
	}

	pin := u32(flashPinParam | s.bootInfo.FlashPin())
	if _, err = s.command(ctx, cmdFlashSetParam, false, s.cfg.AckTimeout, pin); err != nil {
		return Errored, errors.WithMessage(err, "set flash pin")
	}
	p, err = s.command(ctx, cmdFlashReadID, true, s.cfg.AckTimeout)
	if err != nil {
		return Errored, errors.WithMessage(err, "read flash id")
	}
	if len(p) != 4 {
		return Errored, errors.Errorf("isp: flash id: %d bytes, want 4", len(p))
	}
	s.flashID = flashIDString(p)
	glog.V(1).Infof("isp: flash id: %s", s.flashID)
	if fcfg, ok := FlashConfig(s.flashID); ok {
		_, err = s.command(ctx, cmdFlashSetParam, false, s.cfg.AckTimeout, fcfg)
		if err != nil {
			return Errored, errors.WithMessage(err, "set flash config")
		}
	} else if !s.cfg.SkipFlashConfig {
		return Errored, &UnsupportedFlashError{s.flashID}
	}

	start := s.cfg.FlashAddr
	end := start + uint32(len(s.img))
	_, err = s.command(ctx, cmdFlashErase, false, s.cfg.EraseTimeout, u32(start), u32(end))
	if err != nil {
		return Errored, errors.WithMessage(err, "erase flash")
	}
	return Transferring, nil
}

// transfer writes the image chunk by chunk. A chunk whose acknowledgment is
// missing or negative is sent again, alone, up to Retries times. A missing
// acknowledgment may still arrive, so it is drained before the chunk is sent
// again.
func (s *session) transfer(ctx context.Context) (State, error) {
	for s.seq < len(s.img) {
		n := min(s.cfg.ChunkSize, len(s.img)-s.seq)
		chunk := s.img[s.seq : s.seq+n]
		addr := u32(s.cfg.FlashAddr + uint32(s.seq))
		for attempt := 1; ; attempt++ {
			s.awaitingAck = true
			_, err := s.command(ctx, cmdFlashWrite, false, s.cfg.AckTimeout, addr, chunk)
			s.awaitingAck = err == errTimeout
			if err == nil {
				break
			}
			if !retryable(err) {
				return Errored, err
			}
			if err == errTimeout {
				err = errors.New("no acknowledgment")
			}
			if attempt >= s.cfg.Retries {
				return Errored, &TransferFailedError{Offset: s.seq, Err: err}
			}
			glog.Warningf("isp: chunk at %#x: %v, retrying", s.seq, err)
			s.retries++
			if err := s.settle(ctx); err != nil {
				return Errored, err
			}
		}
		s.seq += n
		if s.cfg.Progress != nil {
			s.cfg.Progress(Progress{Done: s.seq, Total: len(s.img)})
		}
	}
	if _, err := s.command(ctx, cmdWriteCheck, false, s.cfg.AckTimeout); err != nil {
		return Errored, errors.WithMessage(err, "write check")
	}
	if s.cfg.Verify {
		return Verifying, nil
	}
	return Done, nil
}

func (s *session) verify(ctx context.Context) (State, error) {
	p, err := s.command(ctx, cmdFlashReadSHA, true, s.cfg.EraseTimeout,
		u32(s.cfg.FlashAddr), u32(uint32(len(s.img))))
	if err != nil {
		return Errored, errors.WithMessage(err, "read flash sha256")
	}
	sum := sha256.Sum256(s.img)
	if !bytes.Equal(p, sum[:]) {
		return Errored, &VerifyMismatchError{Expected: sum[:], Actual: p}
	}
	return Done, nil
}

// reset restarts the chip. It does not wait for the answer, the mask ROM
// may not send one.
func (s *session) reset() error {
	f, err := encodeFrame(cmdReset)
	if err != nil {
		return err
	}
	return s.write("write reset", f)
}

func (s *session) command(ctx context.Context, cmd byte, withData bool, timeout time.Duration, data ...[]byte) ([]byte, error) {
	f, err := encodeFrame(cmd, data...)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("isp: -> %#02x len %d", cmd, len(f)-4)
	if err := s.write("write", f); err != nil {
		return nil, err
	}
	return s.response(ctx, cmd, withData, timeout)
}

// response reads the answer to cmd. "PD" restarts the timeout.
func (s *session) response(ctx context.Context, cmd byte, withData bool, timeout time.Duration) ([]byte, error) {
	var st [2]byte
	for {
		if _, err := s.readFull(ctx, st[:], timeout); err != nil {
			return nil, err
		}
		switch st {
		case statusPending:
			glog.V(2).Infof("isp: <- %#02x pending", cmd)
			continue
		case statusFail:
			var code [2]byte
			if _, err := s.readFull(ctx, code[:], timeout); err != nil {
				return nil, err
			}
			return nil, &NakError{Cmd: cmd, Code: le.Uint16(code[:])}
		case statusOK:
			if !withData {
				return nil, nil
			}
			var n [2]byte
			if _, err := s.readFull(ctx, n[:], timeout); err != nil {
				return nil, err
			}
			p := make([]byte, le.Uint16(n[:]))
			if _, err := s.readFull(ctx, p, timeout); err != nil {
				return nil, err
			}
			glog.V(2).Infof("isp: <- %#02x ok %x", cmd, p)
			return p, nil
		default:
			return nil, &ResponseError{Cmd: cmd, Status: st}
		}
	}
}

// readFull fills p in bounded reads, checking ctx between them. It returns
// errTimeout if p could not be filled within timeout.
func (s *session) readFull(ctx context.Context, p []byte, timeout time.Duration) (n int, err error) {
	deadline := time.Now().Add(timeout)
	for n < len(p) {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		if !time.Now().Before(deadline) {
			return n, errTimeout
		}
		m, err := s.t.Read(p[n:])
		if err != nil {
			return n, &TransportError{"read", err}
		}
		n += m
	}
	return n, nil
}

func (s *session) write(op string, p []byte) (err error) {
	defer wrapErr(op, &err)
	_, err = s.t.Write(p)
	return err
}

func (s *session) purge() (err error) {
	defer wrapErr("reset input buffer", &err)
	return s.t.ResetInputBuffer()
}

// settle empties the input before a retransmission. The late answer of an
// unacknowledged frame is awaited for one acknowledgment window and dropped,
// so it cannot be taken for the answer to the next frame.
func (s *session) settle(ctx context.Context) error {
	if s.awaitingAck {
		n, err := s.drain(ctx, s.cfg.AckTimeout)
		if err != nil {
			return err
		}
		if n > 0 {
			glog.V(1).Infof("isp: dropped %d late byte(s)", n)
		}
		s.awaitingAck = false
	}
	return s.purge()
}

// drain reads and discards the input for the whole window.
func (s *session) drain(ctx context.Context, window time.Duration) (n int, err error) {
	var buf [64]byte
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		m, err := s.t.Read(buf[:])
		if err != nil {
			return n, &TransportError{"read", err}
		}
		n += m
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
