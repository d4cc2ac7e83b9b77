// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package isp

// flashConfigs maps the JEDEC id of the flash chip to the parameter block
// sent with the flash set param command.
var flashConfigs = map[string][]byte{
	// Winbond W25Q128
	"EF4018": {
		0x04, 0x41, 0x01, 0x00, 0x04, 0x01, 0x00, 0x00,
		0x66, 0x99, 0xff, 0x03, 0x9f, 0x00, 0xb7, 0xe9,
		0x04, 0xef, 0x00, 0x01, 0xc7, 0x20, 0x52, 0xd8,
		0x06, 0x02, 0x32, 0x00, 0x0b, 0x01, 0x0b, 0x01,
		0x3b, 0x01, 0xbb, 0x00, 0x6b, 0x01, 0xeb, 0x02,
		0xeb, 0x02, 0x02, 0x50, 0x00, 0x01, 0x00, 0x01,
		0x01, 0x00, 0x02, 0x01, 0x01, 0x01, 0xab, 0x01,
		0x05, 0x35, 0x00, 0x00, 0x01, 0x31, 0x00, 0x00,
		0x38, 0xff, 0xa0, 0xff, 0x77, 0x03, 0x02, 0x40,
		0x77, 0x03, 0x02, 0xf0, 0x2c, 0x01, 0xb0, 0x04,
		0xb0, 0x04, 0x05, 0x00, 0xe8, 0x80, 0x03, 0x00,
	},
}

// FlashConfig returns the parameter block for the flash chip with the given
// id (six hex digits, as printed by the flash command).
func FlashConfig(id string) ([]byte, bool) {
	cfg, ok := flashConfigs[id]
	return cfg, ok
}
