// Copyright (c) 2025-present deep.rent GmbH (https://www.deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/deep-rent/warden/internal/principal"
)

// Clock supplies the current time; swapped out in tests.
type Clock func() time.Time

// options holds the configurable parameters of a Resolver.
type options struct {
	logger *slog.Logger
	clock  Clock
}

// Option configures a Resolver.
type Option func(*options)

// WithLogger provides the slog.Logger for logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock allows injecting a custom (or mock) clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Resolver turns credentials into principals. Successful resolutions are
// cached under the raw credential with a bounded TTL; concurrent misses for
// the same credential collapse into one store call. Failures are never
// cached, so a transient store outage clears itself as soon as the store
// recovers.
type Resolver struct {
	store   Store
	cache   *ristretto.Cache
	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	clock   Clock
	// epoch advances on every invalidation; a fetch that straddles an
	// invalidation must not leave its result in the cache.
	epoch atomic.Uint64
}

// NewResolver constructs a Resolver around the given store. Cached entries
// live at most ttl; one upstream call is bounded by timeout regardless of
// how long the triggering request is willing to wait.
func NewResolver(
	store Store,
	ttl time.Duration,
	timeout time.Duration,
	opts ...Option,
) (*Resolver, error) {
	o := &options{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000, // ~10x expected live sessions
		MaxCost:     10_000,  // one unit per cached principal
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create principal cache: %w", err)
	}

	return &Resolver{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		timeout: timeout,
		logger:  o.logger.With("name", "identity.Resolver"),
		clock:   o.clock,
	}, nil
}

// Resolve returns the principal for a credential. It returns ErrNotFound
// for unknown or invalidated credentials and wraps any store failure; it
// never panics past this boundary. Cancellation of ctx aborts the wait, but
// an in-flight store call keeps running for the benefit of other waiters.
func (r *Resolver) Resolve(ctx context.Context, credential string) (principal.Principal, error) {
	if credential == "" {
		return principal.Principal{}, ErrNotFound
	}

	if v, ok := r.cache.Get(credential); ok {
		if p, ok := v.(principal.Principal); ok {
			return p, nil
		}
	}

	ch := r.group.DoChan(credential, func() (any, error) {
		return r.fetch(ctx, credential)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return principal.Principal{}, res.Err
		}
		return res.Val.(principal.Principal), nil
	case <-ctx.Done():
		// The caller gave up; resolution counts as failed for this request.
		return principal.Principal{}, ctx.Err()
	}
}

// fetch performs the upstream call and populates the cache on success.
func (r *Resolver) fetch(ctx context.Context, credential string) (any, error) {
	// Detach from the triggering request so one impatient client cannot
	// starve the other waiters of the flight; the store timeout still
	// bounds the call.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	epoch := r.epoch.Load()
	s, err := r.store.Resolve(ctx, credential)
	if err != nil {
		if err != ErrNotFound {
			r.logger.Warn("session resolution failed", "error", err)
		}
		return nil, err
	}

	ttl := r.ttl
	if !s.ExpiresAt.IsZero() {
		// A cached principal must not outlive its session.
		if until := s.ExpiresAt.Sub(r.clock()); until < ttl {
			ttl = until
		}
	}
	if ttl > 0 {
		r.cache.SetWithTTL(credential, s.Principal, 1, ttl)
		r.cache.Wait()
		if r.epoch.Load() != epoch {
			// A logout landed while this fetch was in flight; its result
			// must not survive the invalidation.
			r.cache.Del(credential)
		}
	}
	return s.Principal, nil
}

// Invalidate evicts the cached principal and terminates the session on the
// store. The cache eviction happens first and unconditionally, so a logout
// takes local effect even when the store call fails.
func (r *Resolver) Invalidate(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}
	// The epoch bump must precede the eviction so that an in-flight fetch
	// observing the old epoch cannot re-populate the cache afterwards.
	r.epoch.Add(1)
	r.group.Forget(credential)
	r.cache.Del(credential)
	return r.store.Invalidate(ctx, credential)
}

// Close releases the cache resources.
func (r *Resolver) Close() {
	r.cache.Close()
}
