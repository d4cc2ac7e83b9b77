// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package settings

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	Target:     "riscv64imac-unknown-none-elf",
	Package:    "blinky",
	BinaryPath: "target/riscv64imac-unknown-none-elf/debug/blinky",
	Port:       "/dev/ttyUSB0",
	Baudrate:   DefaultBaud,
	Console:    true,
}

// countingStore is an in-memory Store that counts the writes.
type countingStore struct {
	saved  *Config
	writes int
}

func (s *countingStore) Load() (*Config, error) {
	if s.saved == nil {
		return nil, nil
	}
	cfg := *s.saved
	return &cfg, nil
}

func (s *countingStore) Save(cfg Config) error {
	s.saved = &cfg
	s.writes++
	return nil
}

// scripted answers the questions from a list. An exhausted list gives
// ErrNoInput.
type scripted struct {
	answers   []bool
	questions []string
	conflicts []Change
}

func (p *scripted) Conflicts(changes []Change) {
	p.conflicts = changes
}

func (p *scripted) Confirm(q string) (bool, error) {
	p.questions = append(p.questions, q)
	if len(p.answers) == 0 {
		return false, ErrNoInput
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func TestDecide(t *testing.T) {
	saved := testConfig
	changed := testConfig
	changed.Port = "/dev/ttyACM0"

	tests := []struct {
		name    string
		current Config
		saved   *Config
		answers Answers
		want    Outcome
	}{
		{"absent", changed, nil, Answers{}, Outcome{changed, true}},
		{"equal", saved, &saved, Answers{Yes, Yes}, Outcome{saved, false}},
		{"unanswered", changed, &saved, Answers{}, Outcome{saved, false}},
		{"keep saved", changed, &saved, Answers{No, No}, Outcome{saved, false}},
		{"keep saved persist", changed, &saved, Answers{No, Yes}, Outcome{saved, false}},
		{"use current", changed, &saved, Answers{Yes, No}, Outcome{changed, false}},
		{"use current unanswered", changed, &saved, Answers{Yes, Unanswered}, Outcome{changed, false}},
		{"use current persist", changed, &saved, Answers{Yes, Yes}, Outcome{changed, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.current, tt.saved, tt.answers))
		})
	}
}

func TestReconcileAbsent(t *testing.T) {
	store := new(countingStore)
	p := new(scripted)
	r := Reconciler{Store: store, Prompter: p}

	out, err := r.Reconcile(testConfig)
	require.NoError(t, err)
	assert.Equal(t, testConfig, out.Config)
	assert.True(t, out.Persist)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, testConfig, *store.saved)
	assert.Empty(t, p.questions)
}

func TestReconcileEqual(t *testing.T) {
	saved := testConfig
	store := &countingStore{saved: &saved}
	p := new(scripted)
	r := Reconciler{Store: store, Prompter: p}

	out, err := r.Reconcile(testConfig)
	require.NoError(t, err)
	assert.Equal(t, testConfig, out.Config)
	assert.Zero(t, store.writes)
	assert.Empty(t, p.questions)
}

func TestReconcileKeepSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	store := &FileStore{path}
	require.NoError(t, store.Save(testConfig))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	current := testConfig
	current.Baudrate = 115200
	current.Reset = true
	p := &scripted{answers: []bool{false}}
	r := Reconciler{Store: store, Prompter: p}

	out, err := r.Reconcile(current)
	require.NoError(t, err)
	assert.Equal(t, testConfig, out.Config)
	assert.False(t, out.Persist)
	assert.Len(t, p.questions, 1)
	assert.Equal(t, []Change{
		{"baudrate", "2000000", "115200"},
		{"reset", "no", "yes"},
	}, p.conflicts)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReconcileBatch(t *testing.T) {
	saved := testConfig
	store := &countingStore{saved: &saved}
	current := testConfig
	current.Port = "COM3"

	out, err := (&Reconciler{Store: store, Prompter: new(scripted)}).Reconcile(current)
	require.NoError(t, err)
	assert.Equal(t, testConfig, out.Config)
	assert.Zero(t, store.writes)

	out, err = (&Reconciler{Store: store}).Reconcile(current)
	require.NoError(t, err)
	assert.Equal(t, testConfig, out.Config)
	assert.Zero(t, store.writes)
}

func TestReconcileUseCurrent(t *testing.T) {
	saved := testConfig
	store := &countingStore{saved: &saved}
	current := testConfig
	current.Port = "COM3"

	p := &scripted{answers: []bool{true, false}}
	out, err := (&Reconciler{Store: store, Prompter: p}).Reconcile(current)
	require.NoError(t, err)
	assert.Equal(t, current, out.Config)
	assert.Zero(t, store.writes)
	assert.Len(t, p.questions, 2)

	p = &scripted{answers: []bool{true, true}}
	out, err = (&Reconciler{Store: store, Prompter: p}).Reconcile(current)
	require.NoError(t, err)
	assert.Equal(t, current, out.Config)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, current, *store.saved)
}

func TestRunFailureNotSaved(t *testing.T) {
	store := new(countingStore)
	r := Reconciler{Store: store, Prompter: new(scripted)}
	failure := errors.New("handshake timeout")

	var used Config
	out, err := r.Run(testConfig, func(cfg Config) error {
		used = cfg
		assert.Zero(t, store.writes, "saved before use")
		return failure
	})
	assert.ErrorIs(t, err, failure)
	assert.True(t, out.Persist)
	assert.Equal(t, testConfig, used)
	assert.Zero(t, store.writes)
	assert.Nil(t, store.saved)

	_, err = r.Run(testConfig, func(Config) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, testConfig, *store.saved)
}

func TestResolveComplete(t *testing.T) {
	saved := testConfig
	store := &countingStore{saved: &saved}
	current := testConfig
	current.Port = ""
	p := new(scripted)
	r := Reconciler{
		Store:    store,
		Prompter: p,
		Complete: func(cur, s *Config) error {
			require.NotNil(t, s)
			if cur.Port == "" {
				cur.Port = s.Port
			}
			return nil
		},
	}

	out, err := r.Resolve(current)
	require.NoError(t, err)
	assert.Equal(t, testConfig, out.Config)
	assert.False(t, out.Persist)
	assert.Empty(t, p.questions)
	assert.Zero(t, store.writes)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "target"))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg)
	_, err = LoadSaved(store)
	assert.ErrorIs(t, err, ErrNoSavedConfig)

	require.NoError(t, store.Save(testConfig))
	data, err := os.ReadFile(store.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `port = "/dev/ttyUSB0"`)
	assert.Contains(t, string(data), `baudrate = 2000000`)

	got, err := LoadSaved(store)
	require.NoError(t, err)
	assert.Equal(t, testConfig, got)

	entries, err := os.ReadDir(filepath.Dir(store.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreUnparsable(t *testing.T) {
	store := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.Path, []byte("port = [\n"), 0o644))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	out, err := (&Reconciler{Store: store}).Reconcile(testConfig)
	require.NoError(t, err)
	assert.True(t, out.Persist)
	got, err := LoadSaved(store)
	require.NoError(t, err)
	assert.Equal(t, testConfig, got)
}

func TestBinaryPathInfer(t *testing.T) {
	p := BinaryPath("target", "riscv64imac-unknown-none-elf", true, "blinky")
	assert.Equal(t, filepath.Join("target", "riscv64imac-unknown-none-elf", "release", "blinky"), p)

	target, release, pkg, ok := Infer(p)
	require.True(t, ok)
	assert.Equal(t, "riscv64imac-unknown-none-elf", target)
	assert.True(t, release)
	assert.Equal(t, "blinky", pkg)

	_, _, _, ok = Infer("build/blinky.elf")
	assert.False(t, ok)
	_, _, _, ok = Infer("a/b/c/blinky")
	assert.False(t, ok)
}

func TestExecutable(t *testing.T) {
	c := Config{Target: "t", Package: "p", BinaryPath: "/nonexistent/x"}
	exe, err := c.Executable("build")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("build", "t", "debug", "p"), exe)

	c = Config{}
	_, err = c.Executable("build")
	assert.Error(t, err)
}

func TestTermPrompter(t *testing.T) {
	var out bytes.Buffer
	p := &TermPrompter{In: bufio.NewReader(strings.NewReader("y\n\nNO\n")), Out: &out}

	for _, want := range []bool{true, false, false} {
		yes, err := p.Confirm("Proceed?")
		require.NoError(t, err)
		assert.Equal(t, want, yes)
	}
	_, err := p.Confirm("Proceed?")
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Contains(t, out.String(), "Proceed? [y/N] ")

	p.Batch = true
	_, err = p.Confirm("Proceed?")
	assert.ErrorIs(t, err, ErrNoInput)
}
