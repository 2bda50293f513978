package stores

import (
	"context"
	"errors"
	"time"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// ErrNotFound is returned when no unexpired entry matches a lookup.
var ErrNotFound = errors.New("settings not cached")

// Retrieval is one cached xcodebuild settings invocation.
type Retrieval struct {
	ID          string               `json:"id"`
	Fingerprint string               `json:"fingerprint"`
	Action      xcodebuild.Action    `json:"action"`
	ProjectPath string               `json:"project_path"`
	Scheme      string               `json:"scheme,omitempty"`
	Arguments   xcodebuild.Arguments `json:"arguments"`
	TargetCount int                  `json:"target_count"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (r *Retrieval) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Stats summarizes cache contents.
type Stats struct {
	Retrievals int        `json:"retrievals"`
	Targets    int        `json:"targets"`
	Expired    int        `json:"expired"`
	Projects   int        `json:"projects"`
	Oldest     *time.Time `json:"oldest,omitempty"`
}

// Store is the settings cache interface.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Settings operations
	PutSettings(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action, all []*buildsettings.BuildSettings, ttl time.Duration) error
	GetSettings(ctx context.Context, args xcodebuild.Arguments, action xcodebuild.Action) ([]*buildsettings.BuildSettings, error)
	ListRetrievals(ctx context.Context, limit, offset int) ([]*Retrieval, error)

	// Invalidation
	InvalidateProject(ctx context.Context, projectPath string) (int64, error)
	InvalidateDir(ctx context.Context, dir string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)

	// Utility
	Stats(ctx context.Context) (*Stats, error)
	HealthCheck(ctx context.Context) error
}
