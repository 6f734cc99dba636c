//go:build linux

package allocator

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// createSegment creates path exclusively and reserves size bytes of backing store
func createSegment(path string, size int) error {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create segment %s: %w", path, err)
	}
	defer unix.Close(fd)

	err = unix.Fallocate(fd, 0, 0, int64(size))
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		err = unix.Ftruncate(fd, int64(size))
	}
	if err == nil {
		return nil
	}
	_ = unix.Unlink(path)
	if errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EFBIG) || errors.Is(err, unix.ENOMEM) {
		return fmt.Errorf("%w: %d bytes: %v", ErrInsufficientSpace, size, err)
	}
	return fmt.Errorf("failed to size segment %s: %w", path, err)
}

// mapSegment maps an existing segment and closes its descriptor
func mapSegment(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	defer unix.Close(fd)

	var stat unix.Stat_t
	if err = unix.Fstat(fd, &stat); err != nil {
		return nil, fmt.Errorf("failed to stat segment %s: %w", path, err)
	}
	if stat.Size <= 0 {
		return nil, fmt.Errorf("segment %s is empty", path)
	}
	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

func unmapSegment(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}

func removeSegment(path string) error {
	if err := unix.Unlink(path); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("failed to unlink segment %s: %w", path, err)
	}
	return nil
}
