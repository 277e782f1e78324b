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

// Package principal models the identity resolved for a credential and the
// derivation of its effective roles and permissions. A Principal carries the
// stored state exactly as returned by the identity store; Augment applies
// the time-sensitive attribute rules per request.
package principal

import (
	"fmt"
	"strings"
)

// Status describes the lifecycle state of an account.
type Status int

const (
	StatusActive Status = iota
	StatusInactive
	StatusSuspended
	StatusBanned
)

// String returns the canonical lowercase label.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusSuspended:
		return "suspended"
	case StatusBanned:
		return "banned"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts a store-supplied label into a Status. Unknown labels
// are rejected so that malformed session documents fail the decode step
// instead of defaulting to an active account.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	case "suspended":
		return StatusSuspended, nil
	case "banned":
		return StatusBanned, nil
	default:
		return 0, fmt.Errorf("unknown account status %q", v)
	}
}

// Principal is the resolved identity for one credential. It is immutable for
// the duration of a resolution and safe to cache; the attribute map must not
// be mutated after construction.
type Principal struct {
	// ID uniquely identifies the account.
	ID string
	// Status is the account lifecycle state.
	Status Status
	// Roles holds the roles stored on the account.
	Roles []string
	// Permissions holds the permissions stored on the account.
	Permissions []string
	// Attributes carries the raw, schema-checked session attributes used by
	// dynamic role derivation (e.g. "vip_expire_time").
	Attributes map[string]any
}
