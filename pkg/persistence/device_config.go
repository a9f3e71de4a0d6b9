package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boop-box/boopbox-go/pkg/config"
)

// ConfigVersion is the current version of the config file format.
const ConfigVersion = 1

// DefaultFileName is the config file name inside the device config directory.
const DefaultFileName = "config.yaml"

// ErrUnsupportedVersion is returned for files written by a newer format.
var ErrUnsupportedVersion = errors.New("unsupported config file version")

// DeviceConfig is the on-disk device configuration.
type DeviceConfig struct {
	Version int       `yaml:"version"`
	SavedAt time.Time `yaml:"saved_at"`

	// Connection is nil until the device has been given a server.
	Connection *config.ConnectionCredentials `yaml:"connection,omitempty"`
}

// DeviceConfigStore reads and writes a DeviceConfig file.
// It implements config.Backend.
type DeviceConfigStore struct {
	mu   sync.Mutex
	path string
}

// NewDeviceConfigStore creates a store for the file at path.
func NewDeviceConfigStore(path string) *DeviceConfigStore {
	return &DeviceConfigStore{path: path}
}

// Path returns the file path.
func (s *DeviceConfigStore) Path() string {
	return s.path
}

// Read returns the whole file. Returns nil, nil if the file doesn't exist.
func (s *DeviceConfigStore) Read() (*DeviceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *DeviceConfigStore) read() (*DeviceConfig, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := &DeviceConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if cfg.Version > ConfigVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, cfg.Version)
	}
	return cfg, nil
}

// Write replaces the file with cfg.
func (s *DeviceConfigStore) Write(cfg *DeviceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cfg)
}

func (s *DeviceConfigStore) write(cfg *DeviceConfig) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	cfg.Version = ConfigVersion
	cfg.SavedAt = time.Now().UTC()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load implements config.Backend.
func (s *DeviceConfigStore) Load() (*config.ConnectionCredentials, error) {
	cfg, err := s.Read()
	if err != nil || cfg == nil {
		return nil, err
	}
	return cfg.Connection, nil
}

// Save implements config.Backend.
func (s *DeviceConfigStore) Save(creds config.ConnectionCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read()
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &DeviceConfig{}
	}
	cfg.Connection = &creds
	return s.write(cfg)
}

// Clear removes the file.
func (s *DeviceConfigStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var _ config.Backend = (*DeviceConfigStore)(nil)
