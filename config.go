package shmcache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/shmcache/service/worker"
	"gopkg.in/yaml.v3"
)

// Size represents a byte size that can be expressed as 512MB, 2GiB or 1048576
type Size int64

// UnmarshalYAML decodes numbers and size strings
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var number int64
	if err := node.Decode(&number); err == nil {
		*s = Size(number)
		return nil
	}
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	if text == "" || text == "unbounded" {
		*s = 0
		return nil
	}
	parsed, err := units.RAMInBytes(text)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*s = Size(parsed)
	return nil
}

// String returns human readable size
func (s Size) String() string {
	if s == 0 {
		return "unbounded"
	}
	return units.BytesSize(float64(s))
}

// Config represents cache configuration
type Config struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	MaxBytes        Size          `json:"maxBytes" yaml:"maxBytes"`
	Profiling       bool          `json:"profiling" yaml:"profiling"`
	ProfilingURL    string        `json:"profilingURL,omitempty" yaml:"profilingURL"`
	QueueCapacity   int           `json:"queueCapacity" yaml:"queueCapacity"`
	SegmentDir      string        `json:"segmentDir" yaml:"segmentDir"`
	SocketDir       string        `json:"socketDir" yaml:"socketDir"`
	Executable      string        `json:"executable,omitempty" yaml:"executable"`
	StartTimeout    time.Duration `json:"startTimeout" yaml:"startTimeout"`
	StopTimeout     time.Duration `json:"stopTimeout" yaml:"stopTimeout"`
	ConfirmTimeout  time.Duration `json:"confirmTimeout" yaml:"confirmTimeout"`
	MaxMessageBytes Size          `json:"maxMessageBytes" yaml:"maxMessageBytes"`
	LogLevel        string        `json:"logLevel,omitempty" yaml:"logLevel"`
}

// DefaultConfig returns an enabled, unbounded configuration backed by /dev/shm when available
func DefaultConfig() *Config {
	segmentDir := "/dev/shm"
	if info, err := os.Stat(segmentDir); err != nil || !info.IsDir() {
		segmentDir = os.TempDir()
	}
	return &Config{
		Enabled:         true,
		QueueCapacity:   1024,
		SegmentDir:      segmentDir,
		SocketDir:       os.TempDir(),
		StartTimeout:    10 * time.Second,
		StopTimeout:     10 * time.Second,
		ConfirmTimeout:  30 * time.Second,
		MaxMessageBytes: 64 << 20,
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config was nil")
	}
	var errs *multierror.Error
	if c.MaxBytes < 0 {
		errs = multierror.Append(errs, fmt.Errorf("maxBytes must be >= 0"))
	}
	if c.QueueCapacity <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("queueCapacity must be > 0"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("maxMessageBytes must be > 0"))
	}
	if c.SegmentDir == "" {
		errs = multierror.Append(errs, fmt.Errorf("segmentDir was empty"))
	}
	if c.SocketDir == "" {
		errs = multierror.Append(errs, fmt.Errorf("socketDir was empty"))
	}
	if c.StartTimeout <= 0 || c.StopTimeout <= 0 || c.ConfirmTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("startTimeout, stopTimeout and confirmTimeout must be > 0"))
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("logLevel: %w", err))
		}
	}
	return errs.ErrorOrNil()
}

// ApplyFlag applies a worker cache flag such as "on:512MB" to the config
func (c *Config) ApplyFlag(flag string) error {
	enabled, maxBytes, err := worker.ParseFlag(flag)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if maxBytes > 0 {
		c.MaxBytes = Size(maxBytes)
	}
	return nil
}

// LoadConfig loads YAML config from any afs supported URL, on top of DefaultConfig
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
