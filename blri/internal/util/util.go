// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

func Fatal(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	glog.Flush()
	os.Exit(1)
}

// FatalErr prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		err = errors.New("interrupted")
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	glog.Flush()
	os.Exit(1)
}

// UsageErr prints the message followed by the usage and exits with status 2.
func UsageErr(usage func(), f string, args ...any) {
	if f != "" {
		fmt.Fprintf(os.Stderr, f+"\n", args...)
	}
	usage()
	os.Exit(2)
}

// InOutFiles returns the input and output file names. The output name, if
// empty, is the input name with inSuffix replaced by outSuffix.
func InOutFiles(inName, inSuffix, outName, outSuffix string) (string, string) {
	if outName == "" {
		outName = strings.TrimSuffix(inName, inSuffix) + outSuffix
	}
	return inName, outName
}

var pbuf = make([]byte, 0, 80)

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

// Progress draws a progress bar of a transfer of max bytes on stderr.
func Progress(pre string, cur, max int) {
	if max <= 0 {
		return
	}
	pbuf = append(pbuf[:0], '\r')
	pbuf = append(pbuf, pre...)
	done := 25 * cur / max
	pbuf = append(pbuf, pdone[:2+done]...)
	pbuf = append(pbuf, ptodo[done:]...)
	pbuf = strconv.AppendInt(pbuf, int64(cur), 10)
	pbuf = append(pbuf, '/')
	pbuf = strconv.AppendInt(pbuf, int64(max), 10)
	pbuf = append(pbuf, " B"...)
	if cur == max {
		pbuf = append(pbuf, '\n')
	}
	os.Stderr.Write(pbuf)
}
