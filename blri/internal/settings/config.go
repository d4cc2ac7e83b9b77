// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package settings keeps the flashing parameters of a project between runs
// and reconciles them with the parameters of the current invocation.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"
)

const (
	DefaultBaud     = 2000000
	DefaultBuildDir = "target"
	FileName        = "settings.toml"
)

// Config is the set of parameters saved in the settings file.
type Config struct {
	Target     string `toml:"target,omitempty"`
	Release    bool   `toml:"release"`
	Package    string `toml:"package,omitempty"`
	BinaryPath string `toml:"binary_path,omitempty"`
	Port       string `toml:"port,omitempty"`
	Baudrate   int    `toml:"baudrate"`
	Reset      bool   `toml:"reset"`
	Console    bool   `toml:"console"`
}

// BuildDir returns the build output directory: $BLRI_TARGET_DIR or
// DefaultBuildDir.
func BuildDir() string {
	return env.Str("BLRI_TARGET_DIR", DefaultBuildDir)
}

// EnvPort returns $BLRI_PORT.
func EnvPort() string {
	return env.Str("BLRI_PORT")
}

// EnvBaud returns $BLRI_BAUD or DefaultBaud.
func EnvBaud() int {
	return env.Int("BLRI_BAUD", DefaultBaud)
}

func profile(release bool) string {
	if release {
		return "release"
	}
	return "debug"
}

// BinaryPath returns the path of the executable produced for the package by
// a build for target: buildDir/target/{debug,release}/pkg.
func BinaryPath(buildDir, target string, release bool, pkg string) string {
	return filepath.Join(buildDir, target, profile(release), pkg)
}

// Infer recovers the target, build profile and package name from a path
// laid out as BinaryPath does.
func Infer(path string) (target string, release bool, pkg string, ok bool) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	if len(parts) < 3 {
		return "", false, "", false
	}
	n := len(parts)
	switch parts[n-2] {
	case "release":
		release = true
	case "debug":
	default:
		return "", false, "", false
	}
	return parts[n-3], release, parts[n-1], true
}

// Executable returns the path of the program described by c. A saved
// BinaryPath that no longer exists is derived again from the other fields.
func (c *Config) Executable(buildDir string) (string, error) {
	if c.BinaryPath != "" {
		if _, err := os.Stat(c.BinaryPath); err == nil {
			return c.BinaryPath, nil
		}
	}
	if c.Target == "" || c.Package == "" {
		if c.BinaryPath != "" {
			return c.BinaryPath, nil
		}
		return "", errors.New("configuration names no executable")
	}
	return BinaryPath(buildDir, c.Target, c.Release, c.Package), nil
}

// Change is a field that differs between two configurations.
type Change struct {
	Field string
	Old   string
	New   string
}

func (c Change) String() string {
	return c.Field + ": " + c.Old + " -> " + c.New
}

func str(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (c *Config) fields() [8][2]string {
	return [...][2]string{
		{"target", str(c.Target)},
		{"release", yesNo(c.Release)},
		{"package", str(c.Package)},
		{"binary", str(c.BinaryPath)},
		{"port", str(c.Port)},
		{"baudrate", strconv.Itoa(c.Baudrate)},
		{"reset", yesNo(c.Reset)},
		{"console", yesNo(c.Console)},
	}
}

// Diff lists the fields of current that differ from saved.
func Diff(saved, current Config) []Change {
	var changes []Change
	old, cur := saved.fields(), current.fields()
	for i := range old {
		if old[i][1] != cur[i][1] {
			changes = append(changes, Change{old[i][0], old[i][1], cur[i][1]})
		}
	}
	return changes
}

func (c Config) String() string {
	var sb strings.Builder
	for _, f := range c.fields() {
		fmt.Fprintf(&sb, "  %-9s %s\n", f[0]+":", f[1])
	}
	return sb.String()
}
