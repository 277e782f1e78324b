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

// Package policy defines the access requirement expression attached to a
// rule and its recursive evaluation against an augmented principal.
//
// A Policy is a small fixed language, not a general-purpose expression
// engine: login, role, and permission requirements composed with ANY and
// ALL. Policies are parsed once at startup and immutable afterwards.
package policy

import (
	"fmt"
	"strings"

	"github.com/deep-rent/warden/internal/decision"
	"github.com/deep-rent/warden/internal/principal"
)

// Kind discriminates the policy variants.
type Kind int

const (
	// KindAllowAll grants access unconditionally.
	KindAllowAll Kind = iota
	// KindLogin requires a resolved, active account.
	KindLogin
	// KindRole requires an effective role.
	KindRole
	// KindPermission requires an effective permission.
	KindPermission
	// KindAnyOf grants access if any child grants it.
	KindAnyOf
	// KindAllOf grants access only if every child grants it.
	KindAllOf
)

// Policy is one node of a requirement expression. The zero value is
// AllowAll; use the constructors to build anything else.
type Policy struct {
	kind     Kind
	name     string   // role or permission name
	children []Policy // ANY/ALL operands
}

// AllowAll grants access unconditionally.
func AllowAll() Policy {
	return Policy{kind: KindAllowAll}
}

// Login requires a resolved, active account.
func Login() Policy {
	return Policy{kind: KindLogin}
}

// Role requires the effective role name.
func Role(name string) Policy {
	return Policy{kind: KindRole, name: name}
}

// Permission requires the effective permission name.
func Permission(name string) Policy {
	return Policy{kind: KindPermission, name: name}
}

// AnyOf is satisfied by the first satisfied child, left to right.
func AnyOf(children ...Policy) Policy {
	return Policy{kind: KindAnyOf, children: children}
}

// AllOf is satisfied only if every child is, left to right.
func AllOf(children ...Policy) Policy {
	return Policy{kind: KindAllOf, children: children}
}

// Kind returns the variant of this node.
func (p Policy) Kind() Kind {
	return p.kind
}

// Evaluate checks the policy against the augmented principal. A nil subject
// means the request carried no resolvable identity; every variant except
// AllowAll then denies.
//
// ANY evaluates children left to right and short-circuits on the first
// grant; on failure it reports the first child's denial reason. ALL
// evaluates left to right and short-circuits on the first denial, which it
// reports. Both tie-breaks are deterministic by construction.
func (p Policy) Evaluate(sub *principal.Augmented) decision.Decision {
	switch p.kind {
	case KindAllowAll:
		return decision.Allowed()

	case KindLogin:
		if sub == nil || sub.Principal.Status != principal.StatusActive {
			return decision.Denied(decision.NotAuthenticated())
		}
		return decision.Allowed()

	case KindRole:
		if sub != nil && sub.HasRole(p.name) {
			return decision.Allowed()
		}
		return decision.Denied(decision.InsufficientRole(p.name))

	case KindPermission:
		if sub != nil && sub.HasPermission(p.name) {
			return decision.Allowed()
		}
		return decision.Denied(decision.InsufficientPermission(p.name))

	case KindAnyOf:
		var first decision.Decision
		for i, c := range p.children {
			d := c.Evaluate(sub)
			if d.Allow {
				return d
			}
			if i == 0 {
				first = d
			}
		}
		if len(p.children) == 0 {
			// An empty disjunction is unsatisfiable; the parser rejects it,
			// so hitting this means a hand-built malformed policy.
			return decision.Denied(decision.PolicyError())
		}
		return first

	case KindAllOf:
		for _, c := range p.children {
			if d := c.Evaluate(sub); !d.Allow {
				return d
			}
		}
		return decision.Allowed()

	default:
		return decision.Denied(decision.PolicyError())
	}
}

// String renders the policy in the configuration DSL.
func (p Policy) String() string {
	switch p.kind {
	case KindAllowAll:
		return "OPEN"
	case KindLogin:
		return "LOGIN"
	case KindRole:
		return fmt.Sprintf("ROLE(%s)", p.name)
	case KindPermission:
		return fmt.Sprintf("PERMISSION(%s)", p.name)
	case KindAnyOf, KindAllOf:
		op := "ANY"
		if p.kind == KindAllOf {
			op = "ALL"
		}
		parts := make([]string, len(p.children))
		for i, c := range p.children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s(%s)", op, strings.Join(parts, ", "))
	default:
		return fmt.Sprintf("policy(%d)", int(p.kind))
	}
}
