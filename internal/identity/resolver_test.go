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

package identity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/warden/internal/identity"
	"github.com/deep-rent/warden/internal/logger"
	"github.com/deep-rent/warden/internal/principal"
)

// fakeStore is an in-memory Store recording calls for assertions.
type fakeStore struct {
	mu          sync.Mutex
	calls       atomic.Int64
	session     identity.Session
	err         error
	delay       time.Duration
	entered     chan struct{} // signaled when a lookup reaches the store
	release     chan struct{} // when non-nil, lookups block until closed
	invalidated []string
}

func (f *fakeStore) Resolve(ctx context.Context, credential string) (identity.Session, error) {
	f.calls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return identity.Session{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return identity.Session{}, f.err
	}
	return f.session, nil
}

func (f *fakeStore) Invalidate(ctx context.Context, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, credential)
	return nil
}

func (f *fakeStore) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func session(id string) identity.Session {
	return identity.Session{
		Principal: principal.Principal{
			ID:     id,
			Status: principal.StatusActive,
			Roles:  []string{"user"},
		},
	}
}

func newResolver(t *testing.T, store identity.Store, opts ...identity.Option) *identity.Resolver {
	t.Helper()
	opts = append(opts, identity.WithLogger(logger.Silent()))
	r, err := identity.NewResolver(store, time.Minute, 2*time.Second, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestResolverResolve(t *testing.T) {
	t.Run("resolves through the store", func(t *testing.T) {
		store := &fakeStore{session: session("u1")}
		r := newResolver(t, store)

		p, err := r.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "u1", p.ID)
		assert.EqualValues(t, 1, store.calls.Load())
	})

	t.Run("serves repeat lookups from the cache", func(t *testing.T) {
		store := &fakeStore{session: session("u1")}
		r := newResolver(t, store)

		for range 5 {
			_, err := r.Resolve(context.Background(), "tok")
			require.NoError(t, err)
		}
		assert.EqualValues(t, 1, store.calls.Load())
	})

	t.Run("rejects an empty credential without a store call", func(t *testing.T) {
		store := &fakeStore{session: session("u1")}
		r := newResolver(t, store)

		_, err := r.Resolve(context.Background(), "")
		assert.ErrorIs(t, err, identity.ErrNotFound)
		assert.Zero(t, store.calls.Load())
	})

	t.Run("passes ErrNotFound through", func(t *testing.T) {
		store := &fakeStore{err: identity.ErrNotFound}
		r := newResolver(t, store)

		_, err := r.Resolve(context.Background(), "gone")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("collapses concurrent lookups into one store call", func(t *testing.T) {
		store := &fakeStore{session: session("u1"), delay: 200 * time.Millisecond}
		r := newResolver(t, store)

		const n = 16
		var ready, done sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, n)

		for i := range n {
			ready.Add(1)
			done.Add(1)
			go func() {
				defer done.Done()
				ready.Done()
				<-start
				_, errs[i] = r.Resolve(context.Background(), "tok")
			}()
		}
		ready.Wait()
		close(start)
		done.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		assert.EqualValues(t, 1, store.calls.Load())
	})

	t.Run("does not cache failures", func(t *testing.T) {
		store := &fakeStore{session: session("u1")}
		store.fail(errors.New("store down"))
		r := newResolver(t, store)

		_, err := r.Resolve(context.Background(), "tok")
		require.Error(t, err)

		// Once the store recovers, the next lookup succeeds immediately;
		// no logout/login cycle is needed.
		store.fail(nil)
		p, err := r.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "u1", p.ID)
		assert.EqualValues(t, 2, store.calls.Load())
	})

	t.Run("a cached entry never outlives its session", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s := session("u1")
		s.ExpiresAt = now // already expired, nothing may be cached
		store := &fakeStore{session: s}
		r := newResolver(t, store, identity.WithClock(func() time.Time {
			return now
		}))

		_, err := r.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		_, err = r.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		assert.EqualValues(t, 2, store.calls.Load())
	})

	t.Run("aborts the wait when the caller gives up", func(t *testing.T) {
		store := &fakeStore{session: session("u1"), delay: time.Second}
		r := newResolver(t, store)

		ctx, cancel := context.WithTimeout(
			context.Background(), 50*time.Millisecond,
		)
		defer cancel()

		_, err := r.Resolve(ctx, "tok")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestResolverInvalidate(t *testing.T) {
	t.Run("evicts the cache and hits the store", func(t *testing.T) {
		store := &fakeStore{session: session("u1")}
		r := newResolver(t, store)

		_, err := r.Resolve(context.Background(), "tok")
		require.NoError(t, err)

		require.NoError(t, r.Invalidate(context.Background(), "tok"))
		assert.Equal(t, []string{"tok"}, store.invalidated)

		// The next lookup must go back to the store.
		_, err = r.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		assert.EqualValues(t, 2, store.calls.Load())
	})

	t.Run("ignores an empty credential", func(t *testing.T) {
		store := &fakeStore{}
		r := newResolver(t, store)
		require.NoError(t, r.Invalidate(context.Background(), ""))
		assert.Empty(t, store.invalidated)
	})

	t.Run("a lookup in flight during logout is not cached", func(t *testing.T) {
		store := &fakeStore{
			session: session("u1"),
			entered: make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		r := newResolver(t, store)

		done := make(chan error, 1)
		go func() {
			_, err := r.Resolve(context.Background(), "tok")
			done <- err
		}()

		// Logout strikes while the lookup still sits inside the store call.
		<-store.entered
		require.NoError(t, r.Invalidate(context.Background(), "tok"))
		close(store.release)
		require.NoError(t, <-done)

		// The stale session must not have survived the logout: the next
		// lookup has to go back to the store.
		_, err := r.Resolve(context.Background(), "tok")
		require.NoError(t, err)
		assert.EqualValues(t, 2, store.calls.Load())
	})
}
