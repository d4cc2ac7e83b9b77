// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package settings

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var ErrNoSavedConfig = errors.New("no saved configuration, use the run command first")

// Store persists one configuration. Load returns nil if nothing is saved.
type Store interface {
	Load() (*Config, error)
	Save(cfg Config) error
}

// FileStore keeps the configuration in a TOML file.
type FileStore struct {
	Path string
}

// NewFileStore returns the store of the settings file in buildDir.
func NewFileStore(buildDir string) *FileStore {
	return &FileStore{filepath.Join(buildDir, FileName)}
}

// Load reads the file. A missing file and a file that cannot be parsed both
// give a nil configuration, the latter with a warning.
func (s *FileStore) Load() (*Config, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load settings")
	}
	cfg := new(Config)
	if _, err := toml.Decode(string(data), cfg); err != nil {
		glog.Warningf("ignoring %s: %v", s.Path, err)
		return nil, nil
	}
	glog.V(1).Infof("loaded %s", s.Path)
	return cfg, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return errors.Wrap(err, "encode settings")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "save settings")
	}
	f, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return errors.Wrap(err, "save settings")
	}
	tmp := f.Name()
	_, err = f.Write(buf.Bytes())
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err == nil {
		err = os.Rename(tmp, s.Path)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "save settings")
	}
	glog.V(1).Infof("saved %s", s.Path)
	return nil
}

// LoadSaved returns the saved configuration or ErrNoSavedConfig.
func LoadSaved(s Store) (Config, error) {
	cfg, err := s.Load()
	if err != nil {
		return Config{}, err
	}
	if cfg == nil {
		return Config{}, ErrNoSavedConfig
	}
	return *cfg, nil
}
