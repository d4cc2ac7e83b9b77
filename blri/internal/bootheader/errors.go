// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootheader

import "fmt"

// TooSmallError is returned for an image shorter than the boot header.
type TooSmallError struct {
	Len int
}

func (e *TooSmallError) Error() string {
	return fmt.Sprintf(
		"image too small: %d bytes, the boot header alone takes %d bytes",
		e.Len, Size,
	)
}

// BadMagicError is returned if the image doesn't start with the header magic.
type BadMagicError struct {
	Magic [4]byte
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf(
		"bad boot header magic %#08x (%q), expected %q",
		le.Uint32(e.Magic[:]), e.Magic[:], Magic[:],
	)
}

// ConfigMagicError is returned if the flash or the clock configuration
// embedded in the header doesn't start with its magic.
type ConfigMagicError struct {
	Name   string
	Offset int
	Magic  [4]byte
	Want   [4]byte
}

func (e *ConfigMagicError) Error() string {
	return fmt.Sprintf(
		"bad %s config magic %q at %#x, expected %q",
		e.Name, e.Magic[:], e.Offset, e.Want[:],
	)
}

// BodyOffsetError is returned if the image body offset stored in the header
// points into the header or past the end of the image.
type BodyOffsetError struct {
	Offset uint32
	Len    int
}

func (e *BodyOffsetError) Error() string {
	return fmt.Sprintf(
		"image body offset %#x outside [%#x, %#x]",
		e.Offset, Size, e.Len,
	)
}

// HashMismatchError is returned if the header holds a real (not placeholder)
// SHA-256 that differs from the digest of the image body.
type HashMismatchError struct {
	Stored   []byte
	Computed []byte
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf(
		"image body sha256 mismatch: header %x, computed %x",
		e.Stored, e.Computed,
	)
}
