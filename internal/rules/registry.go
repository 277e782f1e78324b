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

package rules

import (
	"fmt"
	"strings"

	"github.com/deep-rent/warden/internal/config"
	"github.com/deep-rent/warden/internal/policy"
)

// Registry is the frozen, ordered rule list. It is built once at startup
// and read-only afterwards, so matching requires no locking.
type Registry struct {
	rules []*Rule
}

// Compile builds a Registry from the declarative rule definitions,
// compiling every pattern and policy expression up front. Overlapping
// patterns are legal; ambiguity is resolved by registration order.
func Compile(defs []config.Rule) (*Registry, error) {
	compiled := make([]*Rule, 0, len(defs))
	for i, def := range defs {
		r, err := compile(def)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		compiled = append(compiled, r)
	}
	return &Registry{rules: compiled}, nil
}

// compile builds a single rule from its definition.
func compile(def config.Rule) (*Rule, error) {
	segments, multi, err := compilePattern(def.Pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", def.Pattern, err)
	}

	r := &Rule{
		Pattern:  def.Pattern,
		segments: segments,
		multi:    multi,
	}

	for _, m := range def.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "ANY" {
			r.methods = nil
			break
		}
		if r.methods == nil {
			r.methods = make(map[string]struct{}, len(def.Methods))
		}
		r.methods[m] = struct{}{}
	}

	action := strings.TrimSpace(def.Action)
	switch upper := strings.ToUpper(action); {
	case upper == "OPEN":
		r.Action = ActionOpen
		r.Policy = policy.AllowAll()
	case upper == "LOGIN":
		r.Action = ActionLogin
		r.Policy = policy.Login()
	case strings.HasPrefix(upper, "POLICY(") && strings.HasSuffix(upper, ")"):
		inner := action[len("POLICY(") : len(action)-1]
		pol, err := policy.Parse(inner)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", def.Action, err)
		}
		r.Action = ActionPolicy
		r.Policy = pol
	default:
		return nil, fmt.Errorf(
			"action must be OPEN, LOGIN, or POLICY(...), got %q", def.Action,
		)
	}
	return r, nil
}

// Match scans the rules in registration order and returns the first one
// applicable to (path, method), or false when no rule matches. The caller
// decides what an unmatched request means; the registry itself takes no
// default.
func (g *Registry) Match(path, method string) (*Rule, bool) {
	for _, r := range g.rules {
		if r.Matches(path, method) {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of registered rules.
func (g *Registry) Len() int {
	return len(g.rules)
}
