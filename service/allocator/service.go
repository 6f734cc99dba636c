package allocator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/viant/shmcache/internal/clock"
	"github.com/viant/shmcache/internal/idgen"
	"github.com/viant/shmcache/internal/logger"
	"github.com/viant/shmcache/model"
	"github.com/viant/shmcache/tracing"
)

// Config represents allocator configuration
type Config struct {
	// Dir is the directory holding segment files
	Dir string
	// Prefix is prepended to every segment id of this cache instance
	Prefix string
	// MaxBytes caps the aggregate size of live segments, 0 means unbounded
	MaxBytes int64
	// Journal retains create/destroy records for profiling
	Journal bool
}

// Service creates and destroys shared memory segments
type Service struct {
	config   Config
	mu       sync.Mutex
	segments map[string]int
	used     int64
	seq      atomic.Uint64
	journal  []*model.Record
	log      *logrus.Entry
}

// New creates an allocator service
func New(config Config) (*Service, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("segment dir was empty")
	}
	if config.MaxBytes < 0 {
		return nil, fmt.Errorf("invalid max bytes: %d", config.MaxBytes)
	}
	return &Service{
		config:   config,
		segments: make(map[string]int),
		log:      logger.Get("allocator"),
	}, nil
}

// Create allocates a segment of at least size bytes
func (s *Service) Create(ctx context.Context, size int) (handle *model.SegmentHandle, err error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid segment size: %d", size)
	}
	_, span := tracing.StartSpan(ctx, "allocator.Create", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	reserve := size
	if reserve == 0 {
		reserve = 1 // zero length files cannot be mapped
	}
	// reserve quota before any I/O so that concurrent creates honour the limit
	s.mu.Lock()
	if s.config.MaxBytes > 0 && s.used+int64(reserve) > s.config.MaxBytes {
		used := s.used
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d bytes with %d of %d in use", ErrLimitExceeded, reserve, used, s.config.MaxBytes)
	}
	s.used += int64(reserve)
	s.mu.Unlock()

	seq := s.seq.Add(1)
	id := fmt.Sprintf("%s%d-%s", s.config.Prefix, seq, idgen.Short())
	span.WithAttributes(map[string]string{"segment.id": id, "segment.bytes": fmt.Sprint(reserve)})
	if err = createSegment(s.path(id), reserve); err != nil {
		s.mu.Lock()
		s.used -= int64(reserve)
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"seq": seq, "op": model.SegmentCreate, "bytes": reserve}).Warnf("segment create failed: %v", err)
		return nil, err
	}
	s.mu.Lock()
	s.segments[id] = reserve
	s.mu.Unlock()
	s.record(seq, model.SegmentCreate, id, reserve)
	return &model.SegmentHandle{ID: id, Size: reserve}, nil
}

// Destroy unlinks a segment created by this service
func (s *Service) Destroy(ctx context.Context, id string) (err error) {
	_, span := tracing.StartSpan(ctx, "allocator.Destroy", "INTERNAL")
	span.WithAttributes(map[string]string{"segment.id": id})
	defer func() { tracing.EndSpan(span, err) }()

	s.mu.Lock()
	size, ok := s.segments[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.segments, id)
	s.used -= int64(size)
	s.mu.Unlock()

	seq := s.seq.Add(1)
	if err = removeSegment(s.path(id)); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.record(seq, model.SegmentDestroy, id, size)
	return nil
}

// DestroyAll unlinks every live segment and returns how many were destroyed
func (s *Service) DestroyAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.segments))
	for id := range s.segments {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	var errs *multierror.Error
	destroyed := 0
	for _, id := range ids {
		if err := s.Destroy(ctx, id); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		destroyed++
	}
	return destroyed, errs.ErrorOrNil()
}

// Usage returns live segment count and their aggregate size
func (s *Service) Usage() (int, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments), s.used
}

// MaxBytes returns configured limit
func (s *Service) MaxBytes() int64 {
	return s.config.MaxBytes
}

// Journal returns a copy of retained create/destroy records
func (s *Service) Journal() []*model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Record(nil), s.journal...)
}

// Attach maps a segment owned by this service
func (s *Service) Attach(id string) (*Attachment, error) {
	return Attach(s.config.Dir, id)
}

func (s *Service) record(seq uint64, op model.SegmentOp, id string, size int) {
	s.log.WithFields(logrus.Fields{"seq": seq, "op": op, "segment": id, "bytes": size}).Debug("segment " + string(op))
	if !s.config.Journal {
		return
	}
	s.mu.Lock()
	s.journal = append(s.journal, &model.Record{Seq: seq, Op: op, Segment: id, Bytes: size, At: clock.Now()})
	s.mu.Unlock()
}

func (s *Service) path(id string) string {
	return filepath.Join(s.config.Dir, id)
}

// IsValidID returns true if id can name a segment file
func IsValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
