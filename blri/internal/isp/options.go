// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isp

import "time"

const (
	// DefaultBaud is the rate used for the handshake. The mask ROM detects
	// it from the sync burst.
	DefaultBaud = 2000000

	// MaxChunkSize is the largest flash write the mask ROM accepts.
	MaxChunkSize = 4096
)

// Progress is reported after every acknowledged chunk.
type Progress struct {
	Done  int // bytes acknowledged by the device
	Total int // image size
}

type Config struct {
	HandshakeBaud int
	TransferBaud  int // 0 keeps HandshakeBaud

	// Timeouts for a single exchange. The device may extend them by
	// sending "PD" (pending).
	HandshakeTimeout time.Duration
	AckTimeout       time.Duration
	EraseTimeout     time.Duration

	// Retries is the total number of attempts of the handshake and of every
	// chunk write.
	Retries int

	ChunkSize int
	FlashAddr uint32

	USBWake         bool
	ChipHandshake   []byte
	SkipFlashConfig bool

	Verify  bool
	Reset   bool
	Handoff bool

	Progress func(Progress)
}

func defaultConfig() Config {
	return Config{
		HandshakeBaud:    DefaultBaud,
		HandshakeTimeout: 500 * time.Millisecond,
		AckTimeout:       2 * time.Second,
		EraseTimeout:     30 * time.Second,
		Retries:          3,
		ChunkSize:        MaxChunkSize,
		USBWake:          true,
		ChipHandshake:    BL808Handshake,
		Verify:           true,
	}
}

type Option func(*Config)

// WithBaud sets the rate used after the handshake.
func WithBaud(baud int) Option {
	return func(c *Config) {
		c.TransferBaud = baud
	}
}

func WithHandshakeBaud(baud int) Option {
	return func(c *Config) {
		c.HandshakeBaud = baud
	}
}

// WithTimeouts sets the handshake and acknowledgment timeouts. Zero leaves
// the corresponding default.
func WithTimeouts(handshake, ack time.Duration) Option {
	return func(c *Config) {
		if handshake > 0 {
			c.HandshakeTimeout = handshake
		}
		if ack > 0 {
			c.AckTimeout = ack
		}
	}
}

func WithEraseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.EraseTimeout = d
	}
}

func WithRetries(n int) Option {
	return func(c *Config) {
		c.Retries = n
	}
}

// WithChunkSize sets the flash write size. It is clamped to
// [1, MaxChunkSize].
func WithChunkSize(n int) Option {
	return func(c *Config) {
		c.ChunkSize = min(max(n, 1), MaxChunkSize)
	}
}

// WithFlashAddr sets the flash offset of the first image byte.
func WithFlashAddr(addr uint32) Option {
	return func(c *Config) {
		c.FlashAddr = addr
	}
}

func WithUSBWake(on bool) Option {
	return func(c *Config) {
		c.USBWake = on
	}
}

// WithChipHandshake sets the frame written after the sync acknowledgment.
// Nil disables it.
func WithChipHandshake(frame []byte) Option {
	return func(c *Config) {
		c.ChipHandshake = frame
	}
}

// WithSkipFlashConfig flashes without sending a flash parameter block, so
// chips with unknown flash ids run on the mask ROM defaults.
func WithSkipFlashConfig(skip bool) Option {
	return func(c *Config) {
		c.SkipFlashConfig = skip
	}
}

func WithVerify(on bool) Option {
	return func(c *Config) {
		c.Verify = on
	}
}

func WithReset(on bool) Option {
	return func(c *Config) {
		c.Reset = on
	}
}

// WithHandoff keeps the transport open after a successful flash and returns
// it in Result.Transport.
func WithHandoff(on bool) Option {
	return func(c *Config) {
		c.Handoff = on
	}
}

func WithProgress(f func(Progress)) Option {
	return func(c *Config) {
		c.Progress = f
	}
}
