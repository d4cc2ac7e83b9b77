// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isp

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// errTimeout is returned by the response readers when the device did not
// answer in time. It never leaves the package unwrapped.
var errTimeout = errors.New("no response")

// TransportError reports an I/O failure of the underlying serial link. It is
// never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Error() string {
	return "isp: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &TransportError{op, *err}
	}
}

type HandshakeTimeoutError struct {
	Attempts int
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("isp: handshake: no answer after %d attempts", e.Attempts)
}

type HandshakeRejectedError struct {
	Attempts int
	Response []byte
}

func (e *HandshakeRejectedError) Error() string {
	return fmt.Sprintf(
		"isp: handshake: unexpected answer %q after %d attempts",
		e.Response, e.Attempts,
	)
}

// TransferFailedError reports a chunk that could not be written within the
// retry budget. Offset is the number of image bytes acknowledged by the
// device before the failure.
type TransferFailedError struct {
	Offset int
	Err    error
}

func (e *TransferFailedError) Unwrap() error {
	return e.Err
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf(
		"isp: transfer failed at offset %#x: %v", e.Offset, e.Err,
	)
}

type VerifyMismatchError struct {
	Expected []byte
	Actual   []byte
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf(
		"isp: verify: sha256 mismatch: expected %s, device has %s",
		hex.EncodeToString(e.Expected), hex.EncodeToString(e.Actual),
	)
}

type UnsupportedFlashError struct {
	ID string
}

func (e *UnsupportedFlashError) Error() string {
	return "isp: unsupported flash chip " + e.ID
}

// NakError is a negative acknowledgment ("FL") sent by the mask ROM.
type NakError struct {
	Cmd  byte
	Code uint16
}

func (e *NakError) Error() string {
	return fmt.Sprintf("isp: command %#02x failed with code %#04x", e.Cmd, e.Code)
}

// ResponseError is an answer that starts with none of the known status
// words.
type ResponseError struct {
	Cmd    byte
	Status [2]byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("isp: command %#02x: malformed response %q", e.Cmd, e.Status[:])
}

// retryable reports whether err may be cured by sending the same frame again.
func retryable(err error) bool {
	var nak *NakError
	var bad *ResponseError
	return err == errTimeout || errors.As(err, &nak) || errors.As(err, &bad)
}
