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

package policy

import (
	"fmt"
	"strings"
)

// Parse reads a policy expression in the configuration DSL:
//
//	policy := LOGIN
//	        | ROLE(name)
//	        | PERMISSION(name)
//	        | ANY(policy, policy, ...)
//	        | ALL(policy, policy, ...)
//
// Keywords are case-insensitive; names may contain anything except
// parentheses, commas, and surrounding whitespace. ANY and ALL require at
// least one operand. Parsing happens once at startup so that malformed
// expressions fail fast instead of surfacing per request.
func Parse(s string) (Policy, error) {
	p := &parser{input: s}
	p.skipSpace()
	pol, err := p.expression()
	if err != nil {
		return Policy{}, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return Policy{}, fmt.Errorf(
			"unexpected trailing input at offset %d: %q",
			p.pos, p.input[p.pos:],
		)
	}
	return pol, nil
}

// parser is a tiny recursive-descent reader over the DSL.
type parser struct {
	input string
	pos   int
}

func (p *parser) expression() (Policy, error) {
	word := p.word()
	if word == "" {
		return Policy{}, fmt.Errorf(
			"expected a policy keyword at offset %d", p.pos,
		)
	}
	switch strings.ToUpper(word) {
	case "LOGIN":
		return Login(), nil
	case "ROLE":
		name, err := p.argument(word)
		if err != nil {
			return Policy{}, err
		}
		return Role(name), nil
	case "PERMISSION":
		name, err := p.argument(word)
		if err != nil {
			return Policy{}, err
		}
		return Permission(name), nil
	case "ANY":
		children, err := p.operands(word)
		if err != nil {
			return Policy{}, err
		}
		return AnyOf(children...), nil
	case "ALL":
		children, err := p.operands(word)
		if err != nil {
			return Policy{}, err
		}
		return AllOf(children...), nil
	default:
		return Policy{}, fmt.Errorf("unknown policy keyword %q", word)
	}
}

// argument parses "(name)" after ROLE or PERMISSION.
func (p *parser) argument(kw string) (string, error) {
	if err := p.expect('(', kw); err != nil {
		return "", err
	}
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ')' {
			name := strings.TrimSpace(p.input[start:p.pos])
			if name == "" {
				return "", fmt.Errorf("%s requires a non-empty name", kw)
			}
			if strings.ContainsAny(name, "(,") {
				return "", fmt.Errorf(
					"%s name %q must not contain '(' or ','", kw, name,
				)
			}
			p.pos++
			return name, nil
		}
		p.pos++
	}
	return "", fmt.Errorf("missing ')' after %s name", kw)
}

// operands parses "(policy, policy, ...)" after ANY or ALL.
func (p *parser) operands(kw string) ([]Policy, error) {
	if err := p.expect('(', kw); err != nil {
		return nil, err
	}
	var children []Policy
	for {
		p.skipSpace()
		child, err := p.expression()
		if err != nil {
			return nil, fmt.Errorf("in %s operand %d: %w", kw, len(children)+1, err)
		}
		children = append(children, child)
		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("missing ')' to close %s", kw)
		}
		switch p.input[p.pos] {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return children, nil
		default:
			return nil, fmt.Errorf(
				"expected ',' or ')' in %s at offset %d, got %q",
				kw, p.pos, p.input[p.pos],
			)
		}
	}
}

// word consumes a run of letters.
func (p *parser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

func (p *parser) expect(c byte, kw string) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("expected %q after %s", string(c), kw)
	}
	p.pos++
	return nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}
