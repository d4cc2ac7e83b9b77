// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bootheader patches the boot header found at the beginning of
// a Bouffalo Lab flash image, so the mask ROM accepts the image.
package bootheader

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"
)

// Header layout. All multi-byte integers are little-endian.
const (
	Size = 0x160 // header size

	offMagic      = 0x000
	offVersion    = 0x004
	offFlashCfg   = 0x008 // "FCFG" + flash parameters, copied through
	offClockCfg   = 0x064 // "PCFG" + clock parameters, copied through
	offBootFlags  = 0x080
	offBodyOffset = 0x084 // group image offset, 0 means right after the header
	offTotalLen   = 0x08c
	offHash       = 0x090 // SHA-256 of the image body
	offCPUCfg     = 0x0b0 // CPU, partition and patch tables, copied through
	offReserved   = 0x148
	offPayloadCRC = 0x158 // last reserved word, covered by the header CRC
	offHeaderCRC  = 0x15c // checked by the mask ROM over [0, offHeaderCRC)
)

var (
	// Magic is the header magic as it appears in the image.
	Magic = [4]byte{'B', 'F', 'N', 'P'}
	// FlashMagic starts the flash configuration.
	FlashMagic = [4]byte{'F', 'C', 'F', 'G'}
	// ClockMagic starts the clock configuration.
	ClockMagic = [4]byte{'P', 'C', 'F', 'G'}
)

// HashPlaceholder is the hash emitted by linkers that cannot compute the
// image digest themselves. A hash holding only its first word and an all
// zero hash are also accepted as placeholders.
var HashPlaceholder = [sha256.Size]byte{
	0xef, 0xbe, 0xad, 0xde, 0xef, 0xbe, 0xad, 0xde,
	0xef, 0xbe, 0xad, 0xde, 0xef, 0xbe, 0xad, 0xde,
	0xef, 0xbe, 0xad, 0xde, 0xef, 0xbe, 0xad, 0xde,
	0xef, 0xbe, 0xad, 0xde, 0xef, 0xbe, 0xad, 0xde,
}

var le = binary.LittleEndian

// Header is the decoded form of the fields the patcher cares about. The
// remaining bytes are kept verbatim in Raw.
type Header struct {
	Magic      [4]byte
	Version    uint32
	FlashMagic [4]byte
	ClockMagic [4]byte
	BodyOffset uint32
	TotalLen   uint32
	Hash       [sha256.Size]byte
	PayloadCRC uint32
	HeaderCRC  uint32
	Raw        [Size]byte
}

// Decode decodes the header at the beginning of img.
func Decode(img []byte) (*Header, error) {
	if len(img) < Size {
		return nil, &TooSmallError{Len: len(img)}
	}
	h := new(Header)
	copy(h.Raw[:], img[:Size])
	copy(h.Magic[:], img[offMagic:])
	h.Version = le.Uint32(img[offVersion:])
	copy(h.FlashMagic[:], img[offFlashCfg:])
	copy(h.ClockMagic[:], img[offClockCfg:])
	h.BodyOffset = le.Uint32(img[offBodyOffset:])
	h.TotalLen = le.Uint32(img[offTotalLen:])
	copy(h.Hash[:], img[offHash:])
	h.PayloadCRC = le.Uint32(img[offPayloadCRC:])
	h.HeaderCRC = le.Uint32(img[offHeaderCRC:])
	return h, nil
}

// Encode writes the header into dst, which must be at least Size bytes long.
// The reserved fields are taken from h.Raw.
func (h *Header) Encode(dst []byte) {
	_ = dst[Size-1]
	copy(dst, h.Raw[:])
	copy(dst[offMagic:], h.Magic[:])
	le.PutUint32(dst[offVersion:], h.Version)
	copy(dst[offFlashCfg:], h.FlashMagic[:])
	copy(dst[offClockCfg:], h.ClockMagic[:])
	le.PutUint32(dst[offBodyOffset:], h.BodyOffset)
	le.PutUint32(dst[offTotalLen:], h.TotalLen)
	copy(dst[offHash:], h.Hash[:])
	le.PutUint32(dst[offPayloadCRC:], h.PayloadCRC)
	le.PutUint32(dst[offHeaderCRC:], h.HeaderCRC)
}

// ValidMagic reports whether the header starts with the expected magic.
func (h *Header) ValidMagic() bool {
	return h.Magic == Magic
}

// HashPlaceholder reports whether the stored hash is one of the linker
// placeholders.
func (h *Header) HashPlaceholder() bool {
	if h.Hash == HashPlaceholder || h.Hash == [sha256.Size]byte{} {
		return true
	}
	return bytes.Equal(h.Hash[:4], HashPlaceholder[:4]) &&
		bytes.Count(h.Hash[4:], []byte{0}) == sha256.Size-4
}

// bodyStart returns the offset of the hashed image body.
func (h *Header) bodyStart(imgLen int) (int, bool) {
	if h.BodyOffset == 0 {
		return Size, true
	}
	if h.BodyOffset < Size || uint64(h.BodyOffset) > uint64(imgLen) {
		return 0, false
	}
	return int(h.BodyOffset), true
}

// headerCRC computes the CRC of the encoded header bytes that precede the
// header checksum field.
func (h *Header) headerCRC() uint32 {
	var buf [Size]byte
	h.Encode(buf[:])
	return crc32.ChecksumIEEE(buf[:offHeaderCRC])
}

// PayloadCRC computes the CRC of everything that follows the header.
func PayloadCRC(img []byte) uint32 {
	if len(img) <= Size {
		return crc32.ChecksumIEEE(nil)
	}
	return crc32.ChecksumIEEE(img[Size:])
}
