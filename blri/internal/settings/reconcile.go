// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package settings

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Answer is the operator's reply to a yes/no question.
type Answer int

const (
	Unanswered Answer = iota
	Yes
	No
)

// Answers to the questions asked when the saved configuration differs from
// the current one.
type Answers struct {
	UseCurrent Answer // use the current configuration instead of the saved one
	Persist    Answer // save the chosen configuration
}

type Outcome struct {
	Config  Config
	Persist bool
}

// Decide resolves the configuration to use. Without a saved configuration
// the current one is used and saved. A configuration equal to the saved one
// is used as is. Otherwise the current configuration wins only if the
// operator said so, and it is saved only on an explicit yes. Unanswered
// questions keep the saved configuration untouched.
func Decide(current Config, saved *Config, a Answers) Outcome {
	if saved == nil {
		return Outcome{Config: current, Persist: true}
	}
	if current == *saved {
		return Outcome{Config: *saved}
	}
	chosen := *saved
	if a.UseCurrent == Yes {
		chosen = current
	}
	return Outcome{
		Config:  chosen,
		Persist: a.Persist == Yes && chosen != *saved,
	}
}

// ErrNoInput is returned by a Prompter that cannot ask the operator.
var ErrNoInput = errors.New("no operator input")

type Prompter interface {
	// Conflicts shows the fields that differ from the saved configuration.
	Conflicts(changes []Change)
	// Confirm asks a yes/no question.
	Confirm(question string) (bool, error)
}

type Reconciler struct {
	Store    Store
	Prompter Prompter // nil means no operator

	// Complete, if not nil, fills the fields the operator left empty in
	// the current configuration. Saved is nil if nothing is saved.
	Complete func(current *Config, saved *Config) error
}

// Resolve returns the configuration to use for this run. It reads the store
// once and never writes it.
func (r *Reconciler) Resolve(current Config) (Outcome, error) {
	saved, err := r.Store.Load()
	if err != nil {
		return Outcome{}, err
	}
	if r.Complete != nil {
		if err := r.Complete(&current, saved); err != nil {
			return Outcome{}, err
		}
	}
	var a Answers
	if saved != nil && *saved != current && r.Prompter != nil {
		r.Prompter.Conflicts(Diff(*saved, current))
		if a.UseCurrent, err = r.ask("Use the current configuration instead of the saved one?"); err != nil {
			return Outcome{}, err
		}
		if a.UseCurrent == Yes {
			if a.Persist, err = r.ask("Save the current configuration for future runs?"); err != nil {
				return Outcome{}, err
			}
		}
	}
	return Decide(current, saved, a), nil
}

// Commit saves the configuration of out if the outcome requires.
func (r *Reconciler) Commit(out Outcome) error {
	if !out.Persist {
		return nil
	}
	return r.Store.Save(out.Config)
}

// Reconcile resolves the configuration and commits it at once. The store is
// written at most once.
func (r *Reconciler) Reconcile(current Config) (Outcome, error) {
	out, err := r.Resolve(current)
	if err != nil {
		return out, err
	}
	return out, r.Commit(out)
}

// Run resolves the configuration, calls use with it and commits it only if
// use succeeds, so a failed run never replaces the saved configuration.
func (r *Reconciler) Run(current Config, use func(Config) error) (Outcome, error) {
	out, err := r.Resolve(current)
	if err != nil {
		return out, err
	}
	if err := use(out.Config); err != nil {
		return out, err
	}
	return out, r.Commit(out)
}

func (r *Reconciler) ask(question string) (Answer, error) {
	yes, err := r.Prompter.Confirm(question)
	switch {
	case errors.Is(err, ErrNoInput):
		return Unanswered, nil
	case err != nil:
		return Unanswered, err
	case yes:
		return Yes, nil
	}
	return No, nil
}

// TermPrompter asks questions on a terminal. Empty answers mean no.
type TermPrompter struct {
	In  *bufio.Reader
	Out io.Writer

	// Batch reports that no operator is present. Every question gives
	// ErrNoInput.
	Batch bool
}

// NewTermPrompter returns a prompter reading stdin and writing stderr. It
// works in batch mode if stdin is not a terminal.
func NewTermPrompter() *TermPrompter {
	batch := true
	if fi, err := os.Stdin.Stat(); err == nil {
		batch = fi.Mode()&os.ModeCharDevice == 0
	}
	return &TermPrompter{
		In:    bufio.NewReader(os.Stdin),
		Out:   os.Stderr,
		Batch: batch,
	}
}

func (p *TermPrompter) Conflicts(changes []Change) {
	fmt.Fprintln(p.Out, "The configuration differs from the saved one:")
	for _, c := range changes {
		fmt.Fprintln(p.Out, "  "+c.String())
	}
}

func (p *TermPrompter) Confirm(question string) (bool, error) {
	if p.Batch {
		return false, ErrNoInput
	}
	fmt.Fprint(p.Out, question+" [y/N] ")
	line, err := p.In.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			fmt.Fprintln(p.Out)
			return false, ErrNoInput
		}
		return false, errors.Wrap(err, "read answer")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
