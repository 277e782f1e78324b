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

// Package config loads and validates the gateway configuration from a YAML
// file. Unknown keys are rejected so that typos surface at startup rather
// than silently loosening the rule set.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Log      Log      `yaml:"log"`
	Server   Server   `yaml:"server"`
	Upstream Upstream `yaml:"upstream"`
	Identity Identity `yaml:"identity"`
	Forward  Forward  `yaml:"forward"`
	Rules    []Rule   `yaml:"rules"`
}

// Log configures the structured logger.
type Log struct {
	// Level is one of debug, info, warn, error, or silent.
	Level string `yaml:"level"`
	// Format is either json or text.
	Format string `yaml:"format"`
}

// Server configures the inbound http.Server.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Timeouts are given in seconds; zero keeps the library default.
	ReadTimeout       int `yaml:"readTimeout"`
	ReadHeaderTimeout int `yaml:"readHeaderTimeout"`
	IdleTimeout       int `yaml:"idleTimeout"`
	MaxHeaderBytes    int `yaml:"maxHeaderBytes"`
}

// Upstream configures the downstream target that allowed requests are
// forwarded to.
type Upstream struct {
	// Target is the base URL of the downstream service.
	Target string `yaml:"target"`
	// HealthPath is the downstream health endpoint probed by /ready.
	HealthPath string `yaml:"healthPath"`
	// FlushInterval is the proxy flush interval in milliseconds.
	FlushInterval int `yaml:"flushInterval"`
}

// Identity configures the external identity/session store and the local
// principal cache.
type Identity struct {
	// URL is the base URL of the identity store.
	URL string `yaml:"url"`
	// Timeout bounds one store call, in seconds.
	Timeout int `yaml:"timeout"`
	// Retries is the number of additional attempts after a transient store
	// failure. Zero disables retrying.
	Retries int `yaml:"retries"`
	// TTL bounds a cached principal, in seconds. It must not exceed the
	// session lifetime configured on the store.
	TTL int `yaml:"ttl"`
	// Scheme is the Authorization scheme carrying the credential.
	Scheme string `yaml:"scheme"`
	// LogoutPath, when hit, invalidates the cached principal before the
	// request is forwarded.
	LogoutPath string `yaml:"logoutPath"`
}

// Forward configures the headers stamped onto allowed requests.
type Forward struct {
	// Principal is the header carrying the resolved account ID.
	Principal string `yaml:"principal"`
	// Roles is the header carrying the effective roles.
	Roles string `yaml:"roles"`
}

// Rule configures one entry of the ordered rule registry.
type Rule struct {
	// Pattern is a path template supporting a single-segment {x} wildcard
	// and a trailing /** multi-segment wildcard.
	Pattern string `yaml:"pattern"`
	// Methods restricts the rule to the listed HTTP methods; empty or
	// containing ANY matches all methods.
	Methods []string `yaml:"methods"`
	// Action is OPEN, LOGIN, or POLICY(expression).
	Action string `yaml:"action"`
}

// Default returns the baseline configuration applied before decoding.
func Default() Config {
	return Config{
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		Server: Server{
			Host:              "",
			Port:              8080,
			ReadTimeout:       30,
			ReadHeaderTimeout: 10,
			IdleTimeout:       90,
			MaxHeaderBytes:    1 << 16,
		},
		Upstream: Upstream{
			HealthPath:    "/healthz",
			FlushInterval: 200,
		},
		Identity: Identity{
			Timeout:    3,
			Retries:    2,
			TTL:        60,
			Scheme:     "Bearer",
			LogoutPath: "/logout",
		},
		Forward: Forward{
			Principal: "X-Auth-Principal",
			Roles:     "X-Auth-Roles",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML over the defaults and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// methods lists the HTTP methods accepted in a rule definition.
var methods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
	"HEAD":   true,
	"ANY":    true,
}

// Validate performs the structural checks that do not require compiling
// patterns or policies; those run when the rule registry is built.
func (c Config) Validate() error {
	if c.Upstream.Target == "" {
		return fmt.Errorf("upstream.target is required")
	}
	if c.Identity.URL == "" {
		return fmt.Errorf("identity.url is required")
	}
	if c.Identity.TTL <= 0 {
		return fmt.Errorf("identity.ttl must be positive")
	}
	if c.Identity.Timeout <= 0 {
		return fmt.Errorf("identity.timeout must be positive")
	}
	if c.Identity.Retries < 0 {
		return fmt.Errorf("identity.retries must not be negative")
	}
	if p := c.Identity.LogoutPath; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("identity.logoutPath must start with '/'")
	}
	for i, r := range c.Rules {
		if r.Pattern == "" {
			return fmt.Errorf("rules[%d].pattern is required", i)
		}
		if !strings.HasPrefix(r.Pattern, "/") {
			return fmt.Errorf("rules[%d].pattern must start with '/'", i)
		}
		if strings.TrimSpace(r.Action) == "" {
			return fmt.Errorf("rules[%d].action is required", i)
		}
		for j, m := range r.Methods {
			if !methods[strings.ToUpper(strings.TrimSpace(m))] {
				return fmt.Errorf(
					"rules[%d].methods[%d]: unsupported method %q", i, j, m,
				)
			}
		}
	}
	return nil
}
