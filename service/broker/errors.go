package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/shmcache/service/ack"
	"github.com/viant/shmcache/service/allocator"
	"github.com/viant/shmcache/service/messaging"
	"github.com/viant/shmcache/service/registry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrUnavailable is returned when the broker or tracker cannot accept work
	ErrUnavailable = errors.New("broker: unavailable")

	// ErrUnauthenticated is returned for calls without a valid bearer token
	ErrUnauthenticated = errors.New("broker: unauthenticated")

	// ErrPermissionDenied is returned for owner calls without the owner token
	ErrPermissionDenied = errors.New("broker: permission denied")
)

var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{allocator.ErrNotFound, codes.NotFound},
	{allocator.ErrInvalidID, codes.InvalidArgument},
	{allocator.ErrLimitExceeded, codes.ResourceExhausted},
	{allocator.ErrInsufficientSpace, codes.ResourceExhausted},
	{registry.ErrAlreadyExists, codes.AlreadyExists},
	{messaging.ErrClosed, codes.Aborted},
	{ack.ErrNotExpected, codes.FailedPrecondition},
	{ErrUnavailable, codes.Unavailable},
	{ErrUnauthenticated, codes.Unauthenticated},
	{ErrPermissionDenied, codes.PermissionDenied},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

// toStatus converts err to a gRPC status error keeping its message
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, candidate := range statusCodes {
		if errors.Is(err, candidate.err) {
			return status.Error(candidate.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func invalidArgument(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// fromStatus converts a gRPC status error back to an error wrapping the
// matching sentinel
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	for _, candidate := range statusCodes {
		if candidate.code != st.Code() {
			continue
		}
		if text := candidate.err.Error(); strings.HasPrefix(msg, text) {
			return fmt.Errorf("%w%s", candidate.err, strings.TrimPrefix(msg, text))
		}
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, msg)
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, msg)
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, msg)
	}
	return fmt.Errorf("broker: %s: %s", st.Code(), msg)
}
