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

// Package decision defines the outcome type produced by the authorization
// pipeline and the taxonomy of denial reasons. The pipeline converts every
// internal failure into one of these reasons; nothing else crosses its
// boundary.
package decision

// Kind enumerates the causes of an access denial.
type Kind int

const (
	// KindNotAuthenticated implies that no valid credential accompanied the
	// request, or the resolved account is not active.
	KindNotAuthenticated Kind = iota

	// KindInsufficientRole implies that the credential is valid but the
	// subject lacks a required role.
	KindInsufficientRole

	// KindInsufficientPermission implies that the credential is valid but
	// the subject lacks a required permission.
	KindInsufficientPermission

	// KindResolutionFailed implies that the identity store could not be
	// reached or errored. The condition is transient; the caller should
	// retry without logging out.
	KindResolutionFailed

	// KindPolicyError implies that a malformed rule or policy was hit at
	// request time. This indicates a configuration bug, not a user error.
	KindPolicyError
)

// String returns a stable lowercase label for logging.
func (k Kind) String() string {
	switch k {
	case KindInsufficientRole:
		return "insufficient_role"
	case KindInsufficientPermission:
		return "insufficient_permission"
	case KindResolutionFailed:
		return "resolution_failed"
	case KindPolicyError:
		return "policy_error"
	default:
		return "not_authenticated"
	}
}

// Reason describes why access was denied. Subject carries the role or
// permission name for the insufficient-role/-permission kinds and is empty
// otherwise.
type Reason struct {
	Kind    Kind
	Subject string
}

// NotAuthenticated reports a missing/invalid credential or inactive account.
func NotAuthenticated() Reason {
	return Reason{Kind: KindNotAuthenticated}
}

// InsufficientRole reports a missing role.
func InsufficientRole(role string) Reason {
	return Reason{Kind: KindInsufficientRole, Subject: role}
}

// InsufficientPermission reports a missing permission.
func InsufficientPermission(permission string) Reason {
	return Reason{Kind: KindInsufficientPermission, Subject: permission}
}

// ResolutionFailed reports an identity store outage or timeout.
func ResolutionFailed() Reason {
	return Reason{Kind: KindResolutionFailed}
}

// PolicyError reports a malformed rule or policy encountered at request time.
func PolicyError() Reason {
	return Reason{Kind: KindPolicyError}
}

// Decision is the final verdict for one request. When Allow is false, Reason
// explains the denial.
type Decision struct {
	Allow  bool
	Reason Reason
}

// Allowed grants access.
func Allowed() Decision {
	return Decision{Allow: true}
}

// Denied refuses access for the given reason.
func Denied(r Reason) Decision {
	return Decision{Reason: r}
}
