package client

import (
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/bundle"
)

// Defaults applied by New.
const (
	DefaultEnvironment     = "production"
	DefaultRefreshInterval = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	APIKey      string
	BaseURL     string
	ProjectID   string
	Environment string
	HTTPClient  *http.Client

	// RefreshInterval is the background refetch period. Zero selects
	// DefaultRefreshInterval; negative disables background refresh.
	RefreshInterval time.Duration
	// MaxStaleness overrides the bundle TTL when positive.
	MaxStaleness time.Duration

	DisableTracking bool
	// Bootstrap is used until the first successful fetch.
	Bootstrap *bundle.Bundle
	// CachePath enables the on-disk last-known-good bundle copy.
	CachePath string
	// OutboxPath enables durable storage of undelivered events.
	OutboxPath string

	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
	DedupTTL      time.Duration
}

func (o *Options) normalize() error {
	if o.ProjectID == "" {
		return errors.New("ProjectID is required")
	}
	if o.Environment == "" {
		o.Environment = DefaultEnvironment
	}
	if o.APIKey == "" && o.Bootstrap == nil {
		return errors.New("APIKey is required unless a Bootstrap bundle is provided")
	}
	if o.RefreshInterval == 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	return nil
}
