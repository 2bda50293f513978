package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/stores"
	"github.com/xcsettings/xcsettings/pkg/telemetry"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// DefaultTTL is how long cached settings stay valid when no TTL is set.
const DefaultTTL = 24 * time.Hour

// Loader reads settings for every target of a scheme or project.
// *buildsettings.Retriever implements it.
type Loader interface {
	LoadAll(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action) ([]*buildsettings.BuildSettings, error)
}

// Request identifies one settings retrieval.
type Request struct {
	Args   xcodebuild.Arguments
	Action xcodebuild.Action
}

func (r Request) String() string {
	return fmt.Sprintf("%s scheme=%q action=%s", r.Args.Project, r.Args.Scheme, r.Action)
}

// Response is the outcome of one Request in LoadMany.
type Response struct {
	Request  Request
	Settings []*buildsettings.BuildSettings
	Err      error
}

// Service loads settings through an optional cache.
type Service struct {
	loader     Loader
	store      stores.Store
	ttl        time.Duration
	maxWorkers int
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore caches settings in store for ttl. A nil store disables caching.
func WithStore(store stores.Store, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.store = store
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithServiceMetrics records cache lookups and invalidations on m.
func WithServiceMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithMaxWorkers bounds the concurrent retrievals of LoadMany.
func WithMaxWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// NewService creates a service reading settings with loader.
func NewService(loader Loader, opts ...ServiceOption) *Service {
	s := &Service{
		loader:     loader,
		ttl:        DefaultTTL,
		maxWorkers: 4,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "settings-service").Logger()
	return s
}

// Cached reports whether the service has a cache.
func (s *Service) Cached() bool {
	return s.store != nil
}

// Load returns cached settings for req when present and unexpired, and
// otherwise retrieves and caches them. Cache failures are logged and never
// fail the load.
func (s *Service) Load(ctx context.Context, req Request) ([]*buildsettings.BuildSettings, error) {
	if s.store != nil {
		all, err := s.store.GetSettings(ctx, req.Args, req.Action)
		switch {
		case err == nil:
			s.metrics.RecordCacheLookup(true)
			s.logger.Debug().Stringer("request", req).Int("targets", len(all)).Msg("Settings cache hit")
			return all, nil
		case errors.Is(err, stores.ErrNotFound):
			s.metrics.RecordCacheLookup(false)
		default:
			s.metrics.RecordCacheLookup(false)
			s.logger.Warn().Err(err).Stringer("request", req).Msg("Settings cache lookup failed")
		}
	}

	return s.Refresh(ctx, req)
}

// Refresh retrieves settings for req, bypassing the cache, and stores the
// result.
func (s *Service) Refresh(ctx context.Context, req Request) ([]*buildsettings.BuildSettings, error) {
	all, err := s.loader.LoadAll(ctx, req.Args, req.Action)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.PutSettings(ctx, req.Args, req.Action, all, s.ttl); err != nil {
			s.logger.Warn().Err(err).Stringer("request", req).Msg("Failed to cache settings")
		}
	}
	return all, nil
}

// LoadMany loads every request on a bounded worker pool. Responses are in
// request order.
func (s *Service) LoadMany(ctx context.Context, reqs []Request, refresh bool) []Response {
	responses := make([]Response, len(reqs))
	if len(reqs) == 0 {
		return responses
	}

	workerCount := min(s.maxWorkers, len(reqs))

	workQueue := make(chan int, len(reqs))
	for i := range reqs {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for range workerCount {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range workQueue {
				responses[i].Request = reqs[i]
				if err := ctx.Err(); err != nil {
					responses[i].Err = err
					continue
				}
				if refresh {
					responses[i].Settings, responses[i].Err = s.Refresh(ctx, reqs[i])
				} else {
					responses[i].Settings, responses[i].Err = s.Load(ctx, reqs[i])
				}
			}
		}()
	}
	wg.Wait()

	return responses
}

// Invalidate drops cached settings for every project under dir and returns
// how many retrievals were removed.
func (s *Service) Invalidate(ctx context.Context, dir string) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	n, err := s.store.InvalidateDir(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate %s: %w", dir, err)
	}
	s.metrics.RecordCacheInvalidation()
	s.logger.Debug().Str("dir", dir).Int64("removed", n).Msg("Settings cache invalidated")
	return n, nil
}
