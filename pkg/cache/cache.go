package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a session-scoped read-through cache for service-layer responses.
// Implementations are constructed per application session and injected; there
// is no package-level instance.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate drops every entry whose key starts with prefix.
	Invalidate(ctx context.Context, prefix string) error
}

// Key builds a stable cache key from a service name, an operation, and the
// JSON serialization of the call's arguments.
func Key(service, op string, args ...any) string {
	parts := []string{service, op}
	for _, arg := range args {
		encoded, err := json.Marshal(arg)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%v", arg))
			continue
		}
		parts = append(parts, string(encoded))
	}
	return strings.Join(parts, ":")
}

// Prefix returns the invalidation prefix covering every key of a service.
func Prefix(service string) string {
	return service + ":"
}
