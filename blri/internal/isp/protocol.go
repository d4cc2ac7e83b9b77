// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isp

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Mask ROM commands.
const (
	cmdGetBootInfo   = 0x10
	cmdChangeRate    = 0x20
	cmdReset         = 0x21
	cmdFlashErase    = 0x30
	cmdFlashWrite    = 0x31
	cmdFlashReadID   = 0x36
	cmdWriteCheck    = 0x3a
	cmdFlashSetParam = 0x3b
	cmdFlashReadSHA  = 0x3d
)

const (
	maxFrameData  = 0xffff
	bootInfoSize  = 24
	flashPinParam = 0x00014100
	syncByte      = 0x55
	syncLen       = 300
)

var (
	statusOK      = [2]byte{'O', 'K'}
	statusPending = [2]byte{'P', 'D'}
	statusFail    = [2]byte{'F', 'L'}
)

// USBWake is written before the sync burst to reset the USB ISP
// implementation of the chips that have one. UART boot ignores it.
var USBWake = []byte("BOUFFALOLAB5555RESET\x00\x01")

// BL808Handshake is the frame the BL808 mask ROM expects right after the sync
// acknowledgment.
var BL808Handshake = []byte{
	0x50, 0x00, 0x08, 0x00, 0x38, 0xf0, 0x00, 0x20, 0x00, 0x00, 0x00, 0x18,
}

var le = binary.LittleEndian

func u32(v uint32) []byte {
	return le.AppendUint32(nil, v)
}

// encodeFrame builds a request: cmd | chk | len (2 LE) | data. The checksum
// is the low byte of the sum of the length and data bytes.
func encodeFrame(cmd byte, data ...[]byte) ([]byte, error) {
	n := 0
	for _, p := range data {
		n += len(p)
	}
	if n > maxFrameData {
		return nil, errors.Errorf("isp: command %#02x: %d bytes of data", cmd, n)
	}
	f := make([]byte, 4, 4+n)
	f[0] = cmd
	le.PutUint16(f[2:], uint16(n))
	for _, p := range data {
		f = append(f, p...)
	}
	sum := f[2] + f[3]
	for _, b := range f[4:] {
		sum += b
	}
	f[1] = sum
	return f, nil
}

// BootInfo is the answer to the get boot info command.
type BootInfo struct {
	ROMVersion uint32
	FlashInfo  uint32
	ChipID     [6]byte
}

func parseBootInfo(p []byte) (*BootInfo, error) {
	if len(p) != bootInfoSize {
		return nil, errors.Errorf(
			"isp: boot info: %d bytes, want %d", len(p), bootInfoSize,
		)
	}
	bi := &BootInfo{
		ROMVersion: le.Uint32(p[0:]),
		FlashInfo:  le.Uint32(p[8:]),
	}
	copy(bi.ChipID[:], p[12:18])
	return bi, nil
}

// FlashPin returns the flash pin configuration strapped in the eFuse.
func (bi *BootInfo) FlashPin() uint32 {
	return bi.FlashInfo >> 14 & 0x1f
}

// ChipIDString returns the chip id the way the vendor tools print it.
func (bi *BootInfo) ChipIDString() string {
	var sb strings.Builder
	for i := len(bi.ChipID) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", bi.ChipID[i])
	}
	return sb.String()
}

func (bi *BootInfo) String() string {
	return fmt.Sprintf(
		"chip id: %s, flash info: %08X, flash pin: %02X",
		bi.ChipIDString(), bi.FlashInfo, bi.FlashPin(),
	)
}

func flashIDString(p []byte) string {
	if len(p) > 3 {
		p = p[:3]
	}
	return fmt.Sprintf("%X", p)
}
