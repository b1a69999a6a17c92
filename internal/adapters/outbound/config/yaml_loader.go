package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tollgate/tollgate/internal/domain"
)

// YAMLLoader implements domain.ConfigLoader by reading .tollgate.yaml.
type YAMLLoader struct{}

// New creates a YAMLLoader.
func New() *YAMLLoader { return &YAMLLoader{} }

// Load reads .tollgate.yaml from projectPath.
// Returns DefaultConfig if the file does not exist.
func (l *YAMLLoader) Load(projectPath string) (domain.Config, error) {
	return l.LoadFile(filepath.Join(projectPath, domain.ConfigFileName))
}

// LoadFile reads an explicit config file. Values present in the file are
// laid over the defaults; everything else keeps its default.
func (l *YAMLLoader) LoadFile(path string) (domain.Config, error) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DefaultConfig(), nil
		}
		return domain.Config{}, err
	}

	cfg := domain.DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return domain.Config{}, fmt.Errorf("parsing %s: %w", name, err)
	}

	if err := cfg.Validate(); err != nil {
		return domain.Config{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return cfg, nil
}

// GitHubToken reads the token from the environment variable the config names.
func GitHubToken(cfg domain.GitHubConfig) string {
	if cfg.TokenEnv == "" {
		return ""
	}
	return os.Getenv(cfg.TokenEnv)
}
