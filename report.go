package shmcache

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/shmcache/model"
)

// Report represents the profiling report written when a profiled cache stops
type Report struct {
	InstanceID string       `json:"instanceId"`
	StartedAt  time.Time    `json:"startedAt"`
	StoppedAt  time.Time    `json:"stoppedAt"`
	Destroyed  int          `json:"destroyed"`
	Stats      *model.Stats `json:"stats,omitempty"`
}

func (s *Service) reportURL() string {
	if s.config.ProfilingURL != "" {
		return s.config.ProfilingURL
	}
	return filepath.Join(s.config.SocketDir, "shmcache-"+s.handle.InstanceID+"-profile.json")
}

func (s *Service) writeReport(ctx context.Context, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode profiling report: %w", err)
	}
	URL := s.reportURL()
	fs := afs.New()
	if err = fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload profiling report %s: %w", URL, err)
	}
	return URL, nil
}
