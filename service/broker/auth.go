package broker

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/viant/shmcache/internal/clock"
	"github.com/viant/shmcache/tracing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	authorizationKey = "authorization"
	ownerKey         = "x-shmcache-owner"
	bearerPrefix     = "Bearer "
)

// tokenCredentials attaches bearer and optional owner tokens to every call
type tokenCredentials struct {
	token string
	owner string
}

func (c *tokenCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	ret := map[string]string{authorizationKey: bearerPrefix + c.token}
	if c.owner != "" {
		ret[ownerKey] = c.owner
	}
	return ret, nil
}

// RequireTransportSecurity returns false, the socket never leaves the node
func (c *tokenCredentials) RequireTransportSecurity() bool {
	return false
}

func sameToken(actual, expect string) bool {
	return expect != "" && subtle.ConstantTimeCompare([]byte(actual), []byte(expect)) == 1
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// isOwner returns true if the incoming call carries the owner token
func (s *Server) isOwner(ctx context.Context) bool {
	md, _ := metadata.FromIncomingContext(ctx)
	return sameToken(firstValue(md, ownerKey), s.config.OwnerToken)
}

func (s *Server) authenticate(ctx context.Context, method string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return fmt.Errorf("%w: missing metadata", ErrUnauthenticated)
	}
	bearer := firstValue(md, authorizationKey)
	if !strings.HasPrefix(bearer, bearerPrefix) || !sameToken(strings.TrimPrefix(bearer, bearerPrefix), s.config.Handle.Token) {
		return fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if ownerMethods[method] && !s.isOwner(ctx) {
		return fmt.Errorf("%w: %s requires owner token", ErrPermissionDenied, method)
	}
	return nil
}

// intercept authenticates, traces and logs every call
func (s *Server) intercept(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
	if err = s.authenticate(ctx, method); err != nil {
		s.log.WithField("method", method).Warn(err)
		return nil, toStatus(err)
	}
	ctx, span := tracing.StartSpan(ctx, "broker."+method, "SERVER")
	started := clock.Now()
	resp, err = handler(ctx, req)
	tracing.EndSpan(span, err)
	if err != nil {
		s.log.WithFields(logrus.Fields{"method": method, "elapsed": clock.Since(started)}).Debugf("call failed: %v", err)
	}
	return resp, toStatus(err)
}
