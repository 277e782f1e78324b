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

package middleware

import (
	"context"
	"log/slog"
	"net/http"
)

// Invalidator terminates a session, both in the local cache and on the
// identity store.
type Invalidator interface {
	Invalidate(ctx context.Context, credential string) error
}

// Logout intercepts the configured logout route after the guard has allowed
// it and invalidates the session before the request is forwarded. The cache
// eviction is synchronous: once the response leaves, the credential no
// longer resolves.
//
// Apply this middleware inside Guard, so the credential is available from
// the request context and the route itself remains subject to the rules.
func Logout(log *slog.Logger, inv Invalidator, path string) Middleware {
	log = log.With("name", "middleware.Logout")

	return func(next http.Handler) http.Handler {
		if path == "" {
			return next
		}
		return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodPost && req.URL.Path == path {
				if credential := Credential(req.Context()); credential != "" {
					if err := inv.Invalidate(req.Context(), credential); err != nil {
						// The cache entry is already gone; only the store
						// call failed. The session dies at the latest when
						// it expires upstream.
						log.Warn("session invalidation failed", "error", err)
					}
				}
			}
			next.ServeHTTP(res, req)
		})
	}
}
