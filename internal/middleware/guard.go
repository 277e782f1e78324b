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
	"strings"

	"github.com/deep-rent/nexus/header"

	"github.com/deep-rent/warden/internal/config"
	"github.com/deep-rent/warden/internal/pipeline"
	"github.com/deep-rent/warden/internal/wire"
)

// ctxKey keys request-scoped values set by the guard.
type ctxKey int

const credentialKey ctxKey = iota

// Credential returns the raw credential the guard extracted for this
// request, or an empty string for open routes and unauthenticated requests.
func Credential(ctx context.Context) string {
	s, _ := ctx.Value(credentialKey).(string)
	return s
}

// Guard runs the authorization pipeline for every request. Denied requests
// are answered directly with the stable wire response; allowed requests are
// stamped with the resolved identity and handed to the next handler.
func Guard(
	log *slog.Logger,
	pipe *pipeline.Pipeline,
	scheme string,
	fwd config.Forward,
) Middleware {
	log = log.With("name", "middleware.Guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
			credential := header.Credentials(req.Header, scheme)

			d, sub := pipe.Authorize(
				req.Context(), req.Method, req.URL.Path, credential,
			)
			if !d.Allow {
				log.Debug("request denied",
					"method", req.Method,
					"path", req.URL.Path,
					"reason", d.Reason.Kind.String(),
				)
				wire.WriteDenial(res, d.Reason)
				return
			}

			// Never leak client-supplied identity headers downstream, and
			// never forward the credential itself.
			req.Header.Del(fwd.Principal)
			req.Header.Del(fwd.Roles)
			req.Header.Del("Authorization")

			if sub != nil {
				req.Header.Set(fwd.Principal, sub.Principal.ID)
				if roles := sub.RoleNames(); len(roles) > 0 {
					req.Header.Set(fwd.Roles, strings.Join(roles, ","))
				}
			}

			ctx := context.WithValue(req.Context(), credentialKey, credential)
			next.ServeHTTP(res, req.WithContext(ctx))
		})
	}
}
