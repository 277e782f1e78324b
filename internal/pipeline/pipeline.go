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

// Package pipeline orchestrates one request's authorization: match the
// rule, resolve the credential if the rule gates access, augment the
// principal for the current instant, and evaluate the rule's policy. Every
// failure inside the pipeline becomes a denial; nothing escapes it as an
// error or panic, and no internal failure ever becomes an allow.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/deep-rent/warden/internal/decision"
	"github.com/deep-rent/warden/internal/identity"
	"github.com/deep-rent/warden/internal/policy"
	"github.com/deep-rent/warden/internal/principal"
	"github.com/deep-rent/warden/internal/rules"
)

// Resolver is the identity lookup consumed by the pipeline.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (principal.Principal, error)
}

// Clock supplies the current time; swapped out in tests.
type Clock func() time.Time

// options holds the configurable parameters of a Pipeline.
type options struct {
	logger *slog.Logger
	clock  Clock
}

// Option configures a Pipeline.
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

// Pipeline decides, per request, whether it may proceed.
type Pipeline struct {
	registry *rules.Registry
	resolver Resolver
	fallback policy.Policy
	logger   *slog.Logger
	clock    Clock
}

// New constructs a Pipeline over the frozen registry. Requests matching no
// registered rule fall back to a login requirement: the engine denies by
// default, it never falls open. A deployment that wants unmatched paths to
// pass must register an explicit trailing "/** -> OPEN" rule.
func New(registry *rules.Registry, resolver Resolver, opts ...Option) *Pipeline {
	o := &options{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Pipeline{
		registry: registry,
		resolver: resolver,
		fallback: policy.Login(),
		logger:   o.logger.With("name", "pipeline.Pipeline"),
		clock:    o.clock,
	}
}

// Authorize runs the Match -> Resolve -> Augment -> Evaluate sequence for
// one request and returns the decision plus, when an identity was resolved,
// the augmented principal for header stamping. Given the same request,
// principal snapshot, and instant, the decision is deterministic.
func (p *Pipeline) Authorize(
	ctx context.Context,
	method string,
	path string,
	credential string,
) (d decision.Decision, sub *principal.Augmented) {
	defer func() {
		// A panic here means a malformed rule or policy slipped past
		// startup validation. Contain it and deny; an internal error must
		// never turn into an allow.
		if v := recover(); v != nil {
			p.logger.Error("panic during policy evaluation",
				"method", method,
				"path", path,
				"panic", v,
				"stack", string(debug.Stack()),
			)
			d = decision.Denied(decision.PolicyError())
			sub = nil
		}
	}()

	pol := p.fallback
	rule, matched := p.registry.Match(path, method)
	if matched {
		if rule.Action == rules.ActionOpen {
			return decision.Allowed(), nil
		}
		pol = rule.Policy
	}

	// The request is gated; a missing credential cannot satisfy anything.
	if credential == "" {
		return decision.Denied(decision.NotAuthenticated()), nil
	}

	resolved, err := p.resolver.Resolve(ctx, credential)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return decision.Denied(decision.NotAuthenticated()), nil
		}
		p.logger.Debug("identity resolution failed",
			"method", method, "path", path, "error", err,
		)
		return decision.Denied(decision.ResolutionFailed()), nil
	}

	aug := principal.Augment(resolved, p.clock())
	d = pol.Evaluate(&aug)
	if !d.Allow && d.Reason.Kind == decision.KindPolicyError {
		// Routine 401/403 traffic is the caller's business; a policy error
		// is a configuration bug and surfaces at error severity.
		p.logger.Error("malformed policy hit at request time",
			"method", method, "path", path, "pattern", patternOf(rule),
		)
	}
	return d, &aug
}

func patternOf(r *rules.Rule) string {
	if r == nil {
		return ""
	}
	return r.Pattern
}
