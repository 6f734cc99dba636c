//go:build !linux

package allocator

import "errors"

var errPlatform = errors.New("allocator: shared memory segments require linux")

func createSegment(string, int) error { return errPlatform }

func mapSegment(string) ([]byte, error) { return nil, errPlatform }

func unmapSegment([]byte) error { return nil }

func removeSegment(string) error { return errPlatform }
