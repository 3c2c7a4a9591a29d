// Package lookupcache keeps the student lookup list in Redis so each
// validation does not pull every summary from the backend again.
package lookupcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/eep-importer/internal/domain"
	"github.com/ignite/eep-importer/internal/importer"
	"github.com/ignite/eep-importer/internal/pkg/logger"
)

// DefaultKey is the Redis key holding the cached lookup list.
const DefaultKey = "eep:students:lookup"

// Backend decorates an importer backend with a read-through cache of the
// lookup list. Record fetches are passed through untouched and a bulk
// import drops the cached list, since it may have created students.
//
// Redis failures never fail a call: the cache is skipped and the error
// logged.
type Backend struct {
	next  importer.Backend
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// New wraps next. A zero ttl defaults to five minutes.
func New(next importer.Backend, client *redis.Client, ttl time.Duration) *Backend {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Backend{next: next, redis: client, key: DefaultKey, ttl: ttl}
}

// LookupStudents returns the cached list or loads and caches it.
func (b *Backend) LookupStudents(ctx context.Context) ([]domain.StudentSummary, error) {
	cached, err := b.load(ctx)
	if err != nil {
		logger.Warn("lookup cache read failed", "component", "lookupcache", "key", b.key, "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	list, err := b.next.LookupStudents(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.store(ctx, list); err != nil {
		logger.Warn("lookup cache write failed", "component", "lookupcache", "key", b.key, "error", err)
	}
	return list, nil
}

// FetchStudents is never cached; review must diff against fresh records.
func (b *Backend) FetchStudents(ctx context.Context, ids []string) ([]domain.Student, error) {
	return b.next.FetchStudents(ctx, ids)
}

// BulkImport submits the payload and invalidates the cached list.
func (b *Backend) BulkImport(ctx context.Context, payload domain.BulkImportPayload) (domain.ImportResult, error) {
	res, err := b.next.BulkImport(ctx, payload)
	if ierr := b.Invalidate(context.WithoutCancel(ctx)); ierr != nil {
		logger.Warn("lookup cache invalidation failed", "component", "lookupcache", "key", b.key, "error", ierr)
	}
	return res, err
}

// Invalidate drops the cached list.
func (b *Backend) Invalidate(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", b.key, err)
	}
	return nil
}

func (b *Backend) load(ctx context.Context) ([]domain.StudentSummary, error) {
	data, err := b.redis.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", b.key, err)
	}

	list := []domain.StudentSummary{}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal lookup list: %w", err)
	}
	return list, nil
}

func (b *Backend) store(ctx context.Context, list []domain.StudentSummary) error {
	if list == nil {
		list = []domain.StudentSummary{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal lookup list: %w", err)
	}
	if err := b.redis.Set(ctx, b.key, data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", b.key, err)
	}
	return nil
}
