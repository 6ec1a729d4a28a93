// Package hconfig loads hashtree's on-disk configuration: a JSON document
// merged from a global path and a repo-local path, repo taking precedence
// — the same two-layer merge internal/config/config.go performs for the
// teacher's own settings, adapted from VCS identity/editor/color fields to
// hashtree's storage, chunking, and crypto knobs.
package hconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/htreeio/hashtree/internal/chunker"
	"github.com/htreeio/hashtree/internal/herrors"
)

// StoreConfig configures where and how the local index persists data.
type StoreConfig struct {
	IndexPath    string `json:"index_path,omitempty"`
	MaxSizeBytes uint64 `json:"max_size_bytes,omitempty"`
}

// ChunkConfig configures the default chunking profile.
type ChunkConfig struct {
	ChunkSize int `json:"chunk_size,omitempty"`
	MaxLinks  int `json:"max_links,omitempty"`
}

// CryptoConfig configures whether new writes are encrypted by default.
type CryptoConfig struct {
	EncryptByDefault bool `json:"encrypt_by_default"`
}

// Config is the full on-disk configuration document.
type Config struct {
	Store  StoreConfig  `json:"store"`
	Chunk  ChunkConfig  `json:"chunk"`
	Crypto CryptoConfig `json:"crypto"`
}

// DefaultConfig returns the built-in defaults, matching chunker's own
// defaults so an unconfigured repo behaves identically to one with an
// explicit config file.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			IndexPath:    filepath.Join(".htree", "index.bolt"),
			MaxSizeBytes: 10 << 30, // 10 GiB
		},
		Chunk: ChunkConfig{
			ChunkSize: chunker.DefaultChunkSize,
			MaxLinks:  chunker.DefaultMaxLinks,
		},
		Crypto: CryptoConfig{EncryptByDefault: false},
	}
}

// ChunkerParams projects Chunk into chunker.Params.
func (c *Config) ChunkerParams() chunker.Params {
	return chunker.Params{ChunkSize: c.Chunk.ChunkSize, MaxLinks: c.Chunk.MaxLinks}
}

func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", herrors.New("hconfig.globalConfigPath", herrors.Io, err)
	}
	return filepath.Join(home, ".htreeconfig"), nil
}

func repoConfigPath() string {
	return filepath.Join(".htree", "config")
}

// Load builds a Config from defaults, a global config file if present, and
// a repo-local config file if present, with the repo file taking
// precedence field-by-field over the global file.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if data, err := os.ReadFile(globalPath); err == nil {
			var globalCfg Config
			if err := json.Unmarshal(data, &globalCfg); err == nil {
				merge(cfg, &globalCfg)
			}
		}
	}

	if data, err := os.ReadFile(repoConfigPath()); err == nil {
		var repoCfg Config
		if err := json.Unmarshal(data, &repoCfg); err == nil {
			merge(cfg, &repoCfg)
		}
	}

	return cfg, nil
}

// SaveGlobal writes cfg to the global config path.
func SaveGlobal(cfg *Config) error {
	path, err := globalConfigPath()
	if err != nil {
		return err
	}
	return save(path, cfg)
}

// SaveRepo writes cfg to the repo-local config path, creating .htree/ if
// needed.
func SaveRepo(cfg *Config) error {
	path := repoConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return herrors.New("hconfig.SaveRepo", herrors.Io, err)
	}
	return save(path, cfg)
}

func save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return herrors.New("hconfig.save", herrors.InvalidArgument, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return herrors.New("hconfig.save", herrors.Io, err)
	}
	return nil
}

// merge overlays non-zero fields of src onto dst, except
// Crypto.EncryptByDefault, which is always copied from src, even when false.
func merge(dst, src *Config) {
	if src.Store.IndexPath != "" {
		dst.Store.IndexPath = src.Store.IndexPath
	}
	if src.Store.MaxSizeBytes != 0 {
		dst.Store.MaxSizeBytes = src.Store.MaxSizeBytes
	}
	if src.Chunk.ChunkSize != 0 {
		dst.Chunk.ChunkSize = src.Chunk.ChunkSize
	}
	if src.Chunk.MaxLinks != 0 {
		dst.Chunk.MaxLinks = src.Chunk.MaxLinks
	}
	dst.Crypto.EncryptByDefault = src.Crypto.EncryptByDefault
}

func validateKey(section, field string) error {
	switch section {
	case "store":
		switch field {
		case "index_path", "max_size_bytes":
			return nil
		}
	case "chunk":
		switch field {
		case "chunk_size", "max_links":
			return nil
		}
	case "crypto":
		switch field {
		case "encrypt_by_default":
			return nil
		}
	}
	return herrors.New("hconfig.validateKey", herrors.InvalidArgument,
		fmt.Errorf("unknown config key: %s.%s", section, field))
}

// splitDotted splits a "section.field" key into its two parts.
func splitDotted(key string) (section, field string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:], nil
		}
	}
	return "", "", herrors.New("hconfig.splitDotted", herrors.InvalidArgument,
		fmt.Errorf("malformed config key, expected <section>.<field>: %s", key))
}

// GetValue reads a single "section.field" key out of cfg, returning its
// value formatted as a string.
func (c *Config) GetValue(key string) (string, error) {
	section, field, err := splitDotted(key)
	if err != nil {
		return "", err
	}
	if err := validateKey(section, field); err != nil {
		return "", err
	}
	switch section {
	case "store":
		switch field {
		case "index_path":
			return c.Store.IndexPath, nil
		case "max_size_bytes":
			return strconv.FormatUint(c.Store.MaxSizeBytes, 10), nil
		}
	case "chunk":
		switch field {
		case "chunk_size":
			return strconv.Itoa(c.Chunk.ChunkSize), nil
		case "max_links":
			return strconv.Itoa(c.Chunk.MaxLinks), nil
		}
	case "crypto":
		if field == "encrypt_by_default" {
			return strconv.FormatBool(c.Crypto.EncryptByDefault), nil
		}
	}
	return "", herrors.New("hconfig.GetValue", herrors.InvalidArgument,
		fmt.Errorf("unknown config key: %s", key))
}

// SetValue parses value into the field named by "section.field" and writes
// it into cfg, then persists cfg globally or repo-locally depending on
// global.
func (c *Config) SetValue(key, value string, global bool) error {
	section, field, err := splitDotted(key)
	if err != nil {
		return err
	}
	if err := validateKey(section, field); err != nil {
		return err
	}

	switch section {
	case "store":
		switch field {
		case "index_path":
			c.Store.IndexPath = value
		case "max_size_bytes":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return herrors.New("hconfig.SetValue", herrors.InvalidArgument, err)
			}
			c.Store.MaxSizeBytes = n
		}
	case "chunk":
		n, err := strconv.Atoi(value)
		if err != nil {
			return herrors.New("hconfig.SetValue", herrors.InvalidArgument, err)
		}
		if field == "chunk_size" {
			c.Chunk.ChunkSize = n
		} else {
			c.Chunk.MaxLinks = n
		}
	case "crypto":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return herrors.New("hconfig.SetValue", herrors.InvalidArgument, err)
		}
		c.Crypto.EncryptByDefault = b
	}

	if global {
		return SaveGlobal(c)
	}
	return SaveRepo(c)
}
