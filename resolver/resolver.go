// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package resolver resolves the effective configuration environment of an
// application from property rows stored in PROPDB. It is the single entry
// point for configuration clients; the HTTP layer in front of it only
// serializes what Resolve returns.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/confrunner/internal/logctx"
	"github.com/cardinalhq/confrunner/internal/rescache"
	"github.com/cardinalhq/confrunner/propdb"
)

var meter = otel.Meter("github.com/cardinalhq/confrunner")

// RowFetcher is the slice of the property store the resolver needs.
type RowFetcher interface {
	FetchRowsBatch(ctx context.Context, application string, pairs []propdb.ScopePair) (map[propdb.ScopePair][]propdb.PropertyRow, error)
}

var _ RowFetcher = (*propdb.Store)(nil)

// validName admits application names, profiles, and labels. Anything
// path-traversal-shaped is rejected before the store is touched.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Resolver composes profile expansion, the resolution cache, the row
// store, and assembly into one resolve call.
type Resolver struct {
	fetcher RowFetcher
	cache   *rescache.Cache[*Environment]
	opts    Options

	resolveDuration metric.Float64Histogram
}

// New creates a Resolver. cache may be nil, in which case every resolve
// computes from the store.
func New(fetcher RowFetcher, cache *rescache.Cache[*Environment], opts Options) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		cache:   cache,
		opts:    opts,
	}
	var err error
	r.resolveDuration, err = meter.Float64Histogram(
		"confrunner.resolve.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of environment resolution calls"),
	)
	if err != nil {
		slog.Warn("failed to create resolve duration histogram", slog.Any("error", err))
	}
	return r
}

// Resolve returns the effective configuration environment for one
// application. Failures are propagated, never papered over with a default
// environment: ErrInvalidRequest for malformed input,
// propdb.ErrStoreUnavailable when the store cannot answer (retryable by
// the caller, never retried here), and DataIntegrityError for corrupt
// rows.
func (r *Resolver) Resolve(ctx context.Context, application string, profiles []string, label string) (*Environment, error) {
	start := time.Now()
	defer func() {
		r.resolveDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if err := validateRequest(application, profiles, label); err != nil {
		return nil, err
	}

	ll := logctx.FromContext(ctx).With(
		slog.String("requestID", uuid.NewString()),
		slog.String("application", application),
		slog.String("profiles", strings.Join(profiles, ",")),
		slog.String("label", label),
	)
	ctx = logctx.WithLogger(ctx, ll)

	spec := ExpandProfiles(profiles, label, r.opts)

	compute := func(ctx context.Context) (*Environment, error) {
		return r.computeEnvironment(ctx, application, label, spec)
	}

	if r.cache == nil {
		return compute(ctx)
	}
	return r.cache.GetOrCompute(ctx, rescache.Key(application, profiles, label), compute)
}

func (r *Resolver) computeEnvironment(ctx context.Context, application, label string, spec SearchSpec) (*Environment, error) {
	ll := logctx.FromContext(ctx)

	grouped, err := r.fetcher.FetchRowsBatch(ctx, application, spec)
	if err != nil {
		ll.Error("property fetch failed", slog.Any("error", err))
		return nil, fmt.Errorf("fetch properties for %s: %w", application, err)
	}

	env, err := Assemble(application, spec, grouped)
	if err != nil {
		ll.Error("environment assembly failed", slog.Any("error", err))
		return nil, err
	}
	env.Label = label

	ll.Debug("resolved environment",
		slog.Int("scopes", len(spec)),
		slog.Int("sources", len(env.Sources)))
	return env, nil
}

func validateRequest(application string, profiles []string, label string) error {
	if application == "" {
		return fmt.Errorf("%w: application name must not be empty", ErrInvalidRequest)
	}
	if !validName.MatchString(application) || strings.Contains(application, "..") {
		return fmt.Errorf("%w: application name %q contains disallowed characters", ErrInvalidRequest, application)
	}
	for _, p := range profiles {
		if p == "" {
			continue
		}
		if !validName.MatchString(p) || strings.Contains(p, "..") {
			return fmt.Errorf("%w: profile %q contains disallowed characters", ErrInvalidRequest, p)
		}
	}
	if label != "" && (!validName.MatchString(label) || strings.Contains(label, "..")) {
		return fmt.Errorf("%w: label %q contains disallowed characters", ErrInvalidRequest, label)
	}
	return nil
}
