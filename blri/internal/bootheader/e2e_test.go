// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootheader_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddedgo/bltools/blri/internal/bootheader"
	"github.com/embeddedgo/bltools/blri/internal/image"
)

func TestExtractThenPatch(t *testing.T) {
	first := make([]byte, 0x80)
	copy(first, bootheader.Magic[:])
	copy(first[0x08:], bootheader.FlashMagic[:])
	copy(first[0x64:], bootheader.ClockMagic[:])
	exe := &image.Executable{Segments: []image.Segment{
		{Name: "boot", Addr: 0x1000, Size: 0x80, Data: first},
		{Name: "text", Addr: 0x1100, Size: 0x40, Data: bytes.Repeat([]byte{0x13}, 0x40)},
		{Name: "data", Addr: 0x2000, Size: 0x20, Data: bytes.Repeat([]byte{0x77}, 0x20)},
	}}
	img, err := image.Extract(exe, image.DefaultPad)
	require.NoError(t, err)
	_, err = bootheader.Patch(img, bootheader.Options{})
	require.NoError(t, err)

	h, err := bootheader.Decode(img)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1020, h.TotalLen)
	assert.Len(t, img, 0x1020)
	assert.Equal(t, crc32.ChecksumIEEE(img[bootheader.Size:0x1020]), h.PayloadCRC)
	assert.Equal(t, crc32.ChecksumIEEE(img[:0x15c]), binary.LittleEndian.Uint32(img[0x15c:]))
	assert.Equal(t, sha256.Sum256(img[bootheader.Size:]), h.Hash)
}
