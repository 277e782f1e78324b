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

// Package wire translates denial reasons into stable HTTP responses. It is
// the only place that turns a reason into a status code, which keeps the
// policy logic reusable behind other protocols.
package wire

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/deep-rent/warden/internal/decision"
)

// Machine-readable denial codes; these are part of the response contract
// and must stay stable across releases.
const (
	CodeNotAuthenticated       = "not_authenticated"
	CodeInsufficientRole       = "insufficient_role"
	CodeInsufficientPermission = "insufficient_permission"
	CodeIdentityUnavailable    = "identity_unavailable"
	CodePolicyError            = "policy_error"
)

// Response is the wire-level rendition of a denial.
type Response struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Map converts a denial reason into its fixed wire response.
func Map(r decision.Reason) Response {
	switch r.Kind {
	case decision.KindInsufficientRole:
		return Response{
			Status:  http.StatusForbidden,
			Code:    CodeInsufficientRole,
			Message: roleMessage(r.Subject),
		}
	case decision.KindInsufficientPermission:
		return Response{
			Status:  http.StatusForbidden,
			Code:    CodeInsufficientPermission,
			Message: permissionMessage(r.Subject),
		}
	case decision.KindResolutionFailed:
		return Response{
			Status:  http.StatusUnauthorized,
			Code:    CodeIdentityUnavailable,
			Message: "authentication unavailable, please retry",
		}
	case decision.KindPolicyError:
		return Response{
			Status:  http.StatusInternalServerError,
			Code:    CodePolicyError,
			Message: "authorization failure",
		}
	default:
		return Response{
			Status:  http.StatusUnauthorized,
			Code:    CodeNotAuthenticated,
			Message: "please login",
		}
	}
}

// roleMessage renders the denial message for a missing role. A few roles
// carry bespoke wording inherited from the response contract.
func roleMessage(role string) string {
	switch role {
	case "blogger":
		return "requires blogger certification"
	default:
		return fmt.Sprintf("requires %s role", role)
	}
}

// permissionMessage renders the denial message for a missing permission.
func permissionMessage(permission string) string {
	switch permission {
	case "vip":
		return "requires VIP permission"
	default:
		return fmt.Sprintf("requires %s permission", permission)
	}
}

// WriteDenial renders the denial as a JSON response body.
func WriteDenial(w http.ResponseWriter, r decision.Reason) {
	res := Map(r)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(res.Status)
	_ = json.NewEncoder(w).Encode(res)
}
