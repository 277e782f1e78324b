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

// Package identity resolves credentials into principals against the
// external identity/session store. The Resolver in this package is the only
// component of the engine that performs network I/O on the request path; it
// caches successful resolutions and collapses concurrent lookups for the
// same credential into a single upstream call.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deep-rent/nexus/backoff"

	"github.com/deep-rent/warden/internal/principal"
)

// ErrNotFound indicates that the store does not know the credential, either
// because it never existed or because the session was invalidated.
var ErrNotFound = errors.New("session not found")

// Session is what the store returns for a valid credential: the resolved
// principal plus the instant the underlying session expires.
type Session struct {
	Principal principal.Principal
	// ExpiresAt is the session expiry; zero when the store does not report
	// one. Cached entries never outlive it.
	ExpiresAt time.Time
}

// Store is the upstream identity/session store consumed by the Resolver.
// Implementations must honor context cancellation on Resolve.
type Store interface {
	// Resolve looks up the session for a credential. It returns ErrNotFound
	// for unknown or invalidated credentials, or another error when the
	// store is unreachable.
	Resolve(ctx context.Context, credential string) (Session, error)

	// Invalidate terminates the session for a credential. Invalidating an
	// unknown credential is not an error.
	Invalidate(ctx context.Context, credential string) error
}

// document is the wire shape of a session as served by the store. Numbers
// inside attributes are decoded as json.Number so that Unix timestamps
// survive without float rounding.
type document struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Roles       []string       `json:"roles"`
	Permissions []string       `json:"permissions"`
	Attributes  map[string]any `json:"attributes"`
	ExpiresAt   string         `json:"expires_at"`
}

// decodeSession validates a session document once, at the resolver
// boundary, so malformed payloads are rejected here instead of being
// re-interpreted on every request.
func decodeSession(r io.Reader) (Session, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return Session{}, errors.New("session document is missing an id")
	}
	status, err := principal.ParseStatus(doc.Status)
	if err != nil {
		return Session{}, fmt.Errorf("session %s: %w", doc.ID, err)
	}
	s := Session{
		Principal: principal.Principal{
			ID:          doc.ID,
			Status:      status,
			Roles:       doc.Roles,
			Permissions: doc.Permissions,
			Attributes:  doc.Attributes,
		},
	}
	if doc.ExpiresAt != "" {
		at, err := time.Parse(time.RFC3339, doc.ExpiresAt)
		if err != nil {
			return Session{}, fmt.Errorf(
				"session %s: bad expires_at: %w", doc.ID, err,
			)
		}
		s.ExpiresAt = at
	}
	return s, nil
}

// HTTPStore talks to the identity store over HTTP. The credential travels
// in the Authorization header; it never appears in a URL.
type HTTPStore struct {
	resolve    string // GET  -> session document
	invalidate string // DELETE
	scheme     string
	client     *http.Client
	retries    int
	backoff    backoff.Strategy
}

// StoreOption configures an HTTPStore.
type StoreOption func(*HTTPStore)

// WithRetries sets how many additional attempts may follow a transiently
// failed resolution. Zero disables retrying.
func WithRetries(n int) StoreOption {
	return func(s *HTTPStore) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBackoff sets the delay strategy applied between attempts.
func WithBackoff(b backoff.Strategy) StoreOption {
	return func(s *HTTPStore) {
		if b != nil {
			s.backoff = b
		}
	}
}

// NewHTTPStore builds a store client for the given base URL. One attempt is
// bounded by timeout; callers typically add a shorter per-request deadline
// through the context.
func NewHTTPStore(
	base string,
	scheme string,
	timeout time.Duration,
	opts ...StoreOption,
) (*HTTPStore, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid identity store url: %w", err)
	}
	endpoint := u.JoinPath("session").String()
	s := &HTTPStore{
		resolve:    endpoint,
		invalidate: endpoint,
		scheme:     scheme,
		client:     &http.Client{Timeout: timeout},
		retries:    2,
		backoff: backoff.New(
			backoff.WithMinDelay(100*time.Millisecond),
			backoff.WithMaxDelay(time.Second),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// transientError marks a failure that a fresh attempt may clear.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Resolve implements Store. Transient failures (unreachable store, 5xx) are
// retried with backoff up to the configured attempt budget; ErrNotFound and
// malformed documents are terminal. The caller's context bounds the whole
// call, retries included.
func (s *HTTPStore) Resolve(ctx context.Context, credential string) (Session, error) {
	for attempt := 0; ; attempt++ {
		sess, err := s.resolveOnce(ctx, credential)
		if err == nil {
			s.backoff.Done()
			return sess, nil
		}
		if !isTransient(err) || attempt >= s.retries {
			return Session{}, err
		}
		select {
		case <-time.After(s.backoff.Next()):
		case <-ctx.Done():
			return Session{}, ctx.Err()
		}
	}
}

// resolveOnce performs a single lookup against the store.
func (s *HTTPStore) resolveOnce(ctx context.Context, credential string) (Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resolve, nil)
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", s.scheme+" "+credential)

	res, err := s.client.Do(req)
	if err != nil {
		return Session{}, &transientError{
			err: fmt.Errorf("identity store: %w", err),
		}
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return decodeSession(res.Body)
	case http.StatusNotFound, http.StatusUnauthorized:
		return Session{}, ErrNotFound
	default:
		err := fmt.Errorf("identity store returned %d", res.StatusCode)
		if res.StatusCode >= http.StatusInternalServerError {
			return Session{}, &transientError{err: err}
		}
		return Session{}, err
	}
}

// Invalidate implements Store.
func (s *HTTPStore) Invalidate(ctx context.Context, credential string) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodDelete, s.invalidate, nil,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", s.scheme+" "+credential)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity store: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("identity store returned %d", res.StatusCode)
}

// Ensure HTTPStore satisfies the Store contract.
var _ Store = (*HTTPStore)(nil)
