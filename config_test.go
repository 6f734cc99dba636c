package shmcache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	var testCases = []struct {
		description string
		URL         string
		content     string
		expect      func(t *testing.T, config *Config)
		expectErr   bool
	}{
		{
			description: "sizes and durations",
			URL:         "mem://localhost/shmcache/config.yaml",
			content: `enabled: true
maxBytes: 512MB
queueCapacity: 8
segmentDir: /dev/shm
socketDir: /tmp
stopTimeout: 3s
profiling: true
logLevel: debug
`,
			expect: func(t *testing.T, config *Config) {
				assert.Equal(t, Size(512<<20), config.MaxBytes)
				assert.Equal(t, 8, config.QueueCapacity)
				assert.Equal(t, 3*time.Second, config.StopTimeout)
				assert.Equal(t, DefaultConfig().StartTimeout, config.StartTimeout)
				assert.True(t, config.Profiling)
				assert.Equal(t, "debug", config.LogLevel)
			},
		},
		{
			description: "unbounded",
			URL:         "mem://localhost/shmcache/unbounded.yaml",
			content:     "maxBytes: unbounded\nmaxMessageBytes: 1048576\n",
			expect: func(t *testing.T, config *Config) {
				assert.Equal(t, Size(0), config.MaxBytes)
				assert.Equal(t, Size(1<<20), config.MaxMessageBytes)
				assert.True(t, config.Enabled)
			},
		},
		{
			description: "invalid size",
			URL:         "mem://localhost/shmcache/invalid.yaml",
			content:     "maxBytes: lots\n",
			expectErr:   true,
		},
		{
			description: "invalid log level",
			URL:         "mem://localhost/shmcache/level.yaml",
			content:     "logLevel: loud\n",
			expectErr:   true,
		},
		{
			description: "missing",
			URL:         "mem://localhost/shmcache/missing.yaml",
			expectErr:   true,
		},
	}
	ctx := context.Background()
	fs := afs.New()
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			if testCase.content != "" {
				require.NoError(t, fs.Upload(ctx, testCase.URL, file.DefaultFileOsMode, strings.NewReader(testCase.content)))
			}
			config, err := LoadConfig(ctx, testCase.URL)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			testCase.expect(t, config)
		})
	}
}

func TestSize(t *testing.T) {
	var testCases = []struct {
		description string
		input       string
		expect      Size
		expectText  string
	}{
		{description: "integer", input: "1024", expect: 1024, expectText: "1KiB"},
		{description: "binary suffix", input: "2GiB", expect: 2 << 30, expectText: "2GiB"},
		{description: "empty", input: `""`, expect: 0, expectText: "unbounded"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			var size Size
			require.NoError(t, yaml.Unmarshal([]byte(testCase.input), &size))
			assert.Equal(t, testCase.expect, size)
			assert.Equal(t, testCase.expectText, size.String())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		mutate      func(config *Config)
		expectErr   bool
	}{
		{description: "default", mutate: func(config *Config) {}},
		{description: "negative max bytes", mutate: func(config *Config) { config.MaxBytes = -1 }, expectErr: true},
		{description: "empty segment dir", mutate: func(config *Config) { config.SegmentDir = "" }, expectErr: true},
		{description: "zero timeout", mutate: func(config *Config) { config.ConfirmTimeout = 0 }, expectErr: true},
		{description: "zero message size", mutate: func(config *Config) { config.MaxMessageBytes = 0 }, expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config := DefaultConfig()
			testCase.mutate(config)
			err := config.Validate()
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_ApplyFlag(t *testing.T) {
	var testCases = []struct {
		description   string
		flag          string
		expectEnabled bool
		expectMax     Size
		expectErr     bool
	}{
		{description: "on with limit", flag: "on:512MB", expectEnabled: true, expectMax: 512 << 20},
		{description: "on unbounded", flag: "on", expectEnabled: true},
		{description: "off", flag: "off", expectEnabled: false},
		{description: "invalid", flag: "maybe", expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config := DefaultConfig()
			err := config.ApplyFlag(testCase.flag)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expectEnabled, config.Enabled)
			assert.Equal(t, testCase.expectMax, config.MaxBytes)
		})
	}
}
