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

// Package rules holds the immutable, ordered rule registry and the request
// matcher. Rules are compiled once at startup; matching is first-match-wins
// in registration order, so operators must register specific patterns before
// general ones.
package rules

import (
	"fmt"
	"strings"

	"github.com/deep-rent/warden/internal/policy"
)

// Action enumerates what a matched rule requires of the request.
type Action int

const (
	// ActionOpen lets the request through without identity resolution.
	ActionOpen Action = iota
	// ActionLogin requires a resolved, active account.
	ActionLogin
	// ActionPolicy requires the attached policy expression to hold.
	ActionPolicy
)

// String returns the configuration keyword for the action.
func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "OPEN"
	case ActionLogin:
		return "LOGIN"
	case ActionPolicy:
		return "POLICY"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Rule is one compiled entry of the registry. It is read-only after
// compilation and safe for concurrent use.
type Rule struct {
	// Pattern is the original path template, kept for logging.
	Pattern string
	// Action is the requirement class of this rule.
	Action Action
	// Policy is the requirement to evaluate. It is Login() for ActionLogin
	// and AllowAll() for ActionOpen, so callers can evaluate it uniformly.
	Policy policy.Policy

	segments []string            // template split at '/'
	multi    bool                // trailing /** wildcard
	methods  map[string]struct{} // nil matches any method
}

// compilePattern splits a path template into segments and validates its
// wildcards. A "{x}" segment matches exactly one path segment; a trailing
// "**" segment matches any remainder, including none.
func compilePattern(pattern string) (segments []string, multi bool, err error) {
	segments = strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	for i, s := range segments {
		if s == "**" {
			if i != len(segments)-1 {
				return nil, false, fmt.Errorf(
					"'**' is only allowed as the trailing segment",
				)
			}
			multi = true
			segments = segments[:i]
			break
		}
		if strings.Contains(s, "**") {
			return nil, false, fmt.Errorf(
				"'**' must occupy a whole segment, got %q", s,
			)
		}
	}
	return segments, multi, nil
}

// matchesPath reports whether path matches the compiled template.
func (r *Rule) matchesPath(path string) bool {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if r.multi {
		// The fixed prefix must match; the remainder is free. A trailing
		// "/**" also matches the bare prefix itself.
		if len(parts) < len(r.segments) {
			return false
		}
	} else if len(parts) != len(r.segments) {
		return false
	}
	for i, seg := range r.segments {
		if isWildcard(seg) {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	return true
}

// matchesMethod reports whether the rule applies to the HTTP method.
func (r *Rule) matchesMethod(method string) bool {
	if r.methods == nil {
		return true
	}
	_, ok := r.methods[strings.ToUpper(method)]
	return ok
}

// Matches reports whether the rule applies to (path, method).
func (r *Rule) Matches(path, method string) bool {
	return r.matchesMethod(method) && r.matchesPath(path)
}

// isWildcard reports whether a template segment is a "{x}" placeholder.
func isWildcard(seg string) bool {
	return len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}
