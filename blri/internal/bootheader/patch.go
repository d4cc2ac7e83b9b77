// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootheader

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

type Options struct {
	// Force patches images with bad magics, a bad body offset or a stale
	// body hash.
	Force bool
}

// Field describes one derived header field.
type Field struct {
	Name   string
	Offset int
	Old    uint32
	New    uint32
}

func (f Field) Changed() bool { return f.Old != f.New }

// Report lists the derived fields and their stored and computed values.
type Report struct {
	Fields  []Field
	OldHash [sha256.Size]byte
	NewHash [sha256.Size]byte
}

// HashChanged reports whether the body hash would be refilled.
func (r *Report) HashChanged() bool { return r.OldHash != r.NewHash }

// Changed reports whether patching would modify the image.
func (r *Report) Changed() bool {
	if r.HashChanged() {
		return true
	}
	for _, f := range r.Fields {
		if f.Changed() {
			return true
		}
	}
	return false
}

func state(changed bool) string {
	if changed {
		return "refill"
	}
	return "ok"
}

func (r *Report) String() string {
	var sb strings.Builder
	for _, f := range r.Fields {
		fmt.Fprintf(&sb, "%-12s @%#05x: %#08x -> %#08x  %s\n", f.Name, f.Offset, f.Old, f.New, state(f.Changed()))
	}
	fmt.Fprintf(&sb, "%-12s @%#05x: %x -> %x  %s\n", "body sha256", offHash, r.OldHash[:4], r.NewHash[:4], state(r.HashChanged()))
	return sb.String()
}

func checkMagics(h *Header) error {
	if !h.ValidMagic() {
		return &BadMagicError{Magic: h.Magic}
	}
	if h.FlashMagic != FlashMagic {
		return &ConfigMagicError{"flash", offFlashCfg, h.FlashMagic, FlashMagic}
	}
	if h.ClockMagic != ClockMagic {
		return &ConfigMagicError{"clock", offClockCfg, h.ClockMagic, ClockMagic}
	}
	return nil
}

// compute decodes the header of img and returns it with the derived fields
// recomputed, together with a report of the changes. The header CRC is
// computed last, over the other refilled fields.
func compute(img []byte, opts Options) (*Header, *Report, error) {
	h, err := Decode(img)
	if err != nil {
		return nil, nil, err
	}
	if err := checkMagics(h); err != nil && !opts.Force {
		return nil, nil, err
	}
	start, ok := h.bodyStart(len(img))
	if !ok {
		if !opts.Force {
			return nil, nil, &BodyOffsetError{Offset: h.BodyOffset, Len: len(img)}
		}
		start = Size
	}
	old := *h
	h.TotalLen = uint32(len(img))
	h.PayloadCRC = PayloadCRC(img)
	sum := sha256.Sum256(img[start:])
	if h.Hash != sum {
		if !h.HashPlaceholder() && !opts.Force {
			return nil, nil, &HashMismatchError{Stored: old.Hash[:], Computed: sum[:]}
		}
		h.Hash = sum
	}
	h.HeaderCRC = h.headerCRC()
	r := &Report{
		Fields: []Field{
			{"total length", offTotalLen, old.TotalLen, h.TotalLen},
			{"payload crc", offPayloadCRC, old.PayloadCRC, h.PayloadCRC},
			{"header crc", offHeaderCRC, old.HeaderCRC, h.HeaderCRC},
		},
		OldHash: old.Hash,
		NewHash: h.Hash,
	}
	return h, r, nil
}

// Check verifies the boot header of img without modifying it.
func Check(img []byte, opts Options) (*Report, error) {
	_, r, err := compute(img, opts)
	return r, err
}

// Patch recomputes the total length, the body hash (if it holds a
// placeholder) and both checksums of the boot header in place. All other
// bytes of img are left untouched.
func Patch(img []byte, opts Options) (*Report, error) {
	h, r, err := compute(img, opts)
	if err != nil {
		return nil, err
	}
	if r.Changed() {
		h.Encode(img)
	}
	return r, nil
}
