// SPDX-FileCopyrightText: 2026 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package catalogcache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/telekom/api-catalog/pkg/discovery"
	"github.com/telekom/api-catalog/pkg/metrics"
	"github.com/telekom/api-catalog/pkg/tracing"
)

// Backend names accepted by New.
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Store is a discovery.Cache that can also be inspected and cleared.
type Store interface {
	discovery.Cache
	// Clear removes the persisted snapshot. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
	// Close releases the resources held by the store.
	Close() error
}

// Options selects and configures a cache backend.
type Options struct {
	// Backend is one of file, pebble, memory or none.
	Backend string `koanf:"backend"`
	// Path is the snapshot file for the file backend and the database directory for the pebble backend.
	Path string `koanf:"path"`
}

// New opens the configured backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("cache backend %q requires a path", opts.Backend)
		}
		return NewFileCache(filepath.Clean(opts.Path)), nil
	case BackendPebble:
		if opts.Path == "" {
			return nil, fmt.Errorf("cache backend %q requires a path", opts.Backend)
		}
		return OpenPebbleCache(filepath.Clean(opts.Path), nil)
	case BackendMemory:
		return NewMemoryCache(), nil
	case BackendNone, "":
		return nopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

type nopStore struct {
	discovery.NopCache
}

func (nopStore) Clear(context.Context) error { return nil }

func (nopStore) Close() error { return nil }

func cacheLogger(ctx context.Context, backend string) logr.Logger {
	return log.FromContext(ctx).WithName("catalogcache").WithValues("backend", backend)
}

// startSpan opens a span for one cache operation. An empty path is omitted.
func startSpan(ctx context.Context, operation, backend, path string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{tracing.AttrCacheBackend.String(backend)}
	if path != "" {
		attrs = append(attrs, tracing.AttrPath.String(path))
	}
	return tracing.Tracer().Start(ctx, "catalogcache."+operation, trace.WithAttributes(attrs...))
}

func recordSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// loadResult records the outcome of a load and reports whether a catalog was found.
func loadResult(ctx context.Context, backend string, catalog *discovery.Catalog, err error) (*discovery.Catalog, bool) {
	switch {
	case err != nil:
		recordSpanError(ctx, err)
		cacheLogger(ctx, backend).V(1).Info("ignoring unreadable catalog cache", "error", err.Error())
		metrics.RecordCacheOperation(backend, metrics.CacheOpLoad, metrics.CacheResultError)
		return nil, false
	case catalog == nil:
		metrics.RecordCacheOperation(backend, metrics.CacheOpLoad, metrics.CacheResultMiss)
		return nil, false
	default:
		metrics.RecordCacheOperation(backend, metrics.CacheOpLoad, metrics.CacheResultHit)
		return catalog, true
	}
}

func saveResult(ctx context.Context, backend string, err error) {
	if err != nil {
		recordSpanError(ctx, err)
		cacheLogger(ctx, backend).V(1).Info("failed to persist catalog cache", "error", err.Error())
		metrics.RecordCacheOperation(backend, metrics.CacheOpSave, metrics.CacheResultError)
		return
	}
	metrics.RecordCacheOperation(backend, metrics.CacheOpSave, metrics.CacheResultOK)
}
