// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

// MalformedError reports an executable whose segments cannot be flattened.
type MalformedError struct {
	Segment string
	Reason  string
	Err     error
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func (e *MalformedError) Error() string {
	s := "malformed executable: "
	if e.Segment != "" {
		s += e.Segment + ": "
	}
	s += e.Reason
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
