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

package principal

import (
	"encoding/json"
	"time"
)

// Attribute names consumed by dynamic derivation.
const (
	// AttrVIPExpireTime holds the instant until which the account enjoys
	// VIP elevation, either as an RFC 3339 string or Unix seconds.
	AttrVIPExpireTime = "vip_expire_time"
)

// Names granted by the VIP derivation while the expiry lies in the future.
const (
	RoleVIP          = "vip"
	PermWalletManage = "wallet_manage"
)

// Augmented is a Principal together with its effective roles and
// permissions for a particular instant. It is recomputed on every request
// and never cached, so time-based derivations stay exact.
type Augmented struct {
	Principal   Principal
	Roles       map[string]struct{}
	Permissions map[string]struct{}
}

// HasRole reports whether the effective role set contains name.
func (a *Augmented) HasRole(name string) bool {
	_, ok := a.Roles[name]
	return ok
}

// HasPermission reports whether the effective permission set contains name.
func (a *Augmented) HasPermission(name string) bool {
	_, ok := a.Permissions[name]
	return ok
}

// RoleNames returns the effective roles as a slice, in no particular order.
func (a *Augmented) RoleNames() []string {
	names := make([]string, 0, len(a.Roles))
	for r := range a.Roles {
		names = append(names, r)
	}
	return names
}

// Augment derives the effective roles and permissions of p at the given
// instant. It is a pure function of (p, now): no I/O, no caching.
//
// A non-active account carries no roles or permissions at all, regardless
// of the stored sets. Otherwise the effective sets are the stored sets plus
// any dynamic grants; derivation only ever adds.
func Augment(p Principal, now time.Time) Augmented {
	a := Augmented{
		Principal:   p,
		Roles:       make(map[string]struct{}, len(p.Roles)+1),
		Permissions: make(map[string]struct{}, len(p.Permissions)+1),
	}
	if p.Status != StatusActive {
		return a
	}
	for _, r := range p.Roles {
		a.Roles[r] = struct{}{}
	}
	for _, m := range p.Permissions {
		a.Permissions[m] = struct{}{}
	}
	if expiry, ok := parseInstant(p.Attributes[AttrVIPExpireTime]); ok {
		if expiry.After(now) {
			a.Roles[RoleVIP] = struct{}{}
			a.Permissions[PermWalletManage] = struct{}{}
		}
	}
	return a
}

// parseInstant interprets an attribute value as a point in time. Accepted
// encodings are an RFC 3339 string or Unix seconds as a JSON number. A
// missing or unparsable value contributes nothing; malformed attributes
// must not grant access.
func parseInstant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	case json.Number:
		secs, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(secs, 0), true
	case float64:
		return time.Unix(int64(t), 0), true
	case int64:
		return time.Unix(t, 0), true
	case int:
		return time.Unix(int64(t), 0), true
	case time.Time:
		return t, true
	default:
		return time.Time{}, false
	}
}
