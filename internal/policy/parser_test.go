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

package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/warden/internal/policy"
)

func TestParse(t *testing.T) {
	t.Run("parses LOGIN", func(t *testing.T) {
		p, err := policy.Parse("LOGIN")
		require.NoError(t, err)
		assert.Equal(t, policy.KindLogin, p.Kind())
	})

	t.Run("parses ROLE with name", func(t *testing.T) {
		p, err := policy.Parse("ROLE(admin)")
		require.NoError(t, err)
		assert.Equal(t, policy.KindRole, p.Kind())
		assert.Equal(t, "ROLE(admin)", p.String())
	})

	t.Run("parses PERMISSION with name", func(t *testing.T) {
		p, err := policy.Parse("PERMISSION(wallet_manage)")
		require.NoError(t, err)
		assert.Equal(t, policy.KindPermission, p.Kind())
	})

	t.Run("keywords are case-insensitive", func(t *testing.T) {
		p, err := policy.Parse("any(role(a), permission(b))")
		require.NoError(t, err)
		assert.Equal(t, policy.KindAnyOf, p.Kind())
	})

	t.Run("parses nested composition", func(t *testing.T) {
		p, err := policy.Parse("ALL(LOGIN, ANY(ROLE(admin), ROLE(blogger)))")
		require.NoError(t, err)
		assert.Equal(t, policy.KindAllOf, p.Kind())
		assert.Equal(t,
			"ALL(LOGIN, ANY(ROLE(admin), ROLE(blogger)))",
			p.String(),
		)
	})

	t.Run("tolerates whitespace", func(t *testing.T) {
		p, err := policy.Parse("  ANY( ROLE( admin ) ,\n LOGIN )  ")
		require.NoError(t, err)
		assert.Equal(t, "ANY(ROLE(admin), LOGIN)", p.String())
	})

	t.Run("rejects unknown keyword", func(t *testing.T) {
		_, err := policy.Parse("SOMETIMES")
		require.ErrorContains(t, err, "unknown policy keyword")
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := policy.Parse("")
		require.Error(t, err)
	})

	t.Run("rejects empty role name", func(t *testing.T) {
		_, err := policy.Parse("ROLE( )")
		require.ErrorContains(t, err, "non-empty name")
	})

	t.Run("rejects unterminated argument", func(t *testing.T) {
		_, err := policy.Parse("ROLE(admin")
		require.ErrorContains(t, err, "missing ')'")
	})

	t.Run("rejects empty composition", func(t *testing.T) {
		_, err := policy.Parse("ANY()")
		require.Error(t, err)
	})

	t.Run("rejects trailing input", func(t *testing.T) {
		_, err := policy.Parse("LOGIN garbage")
		require.ErrorContains(t, err, "trailing input")
	})

	t.Run("reports the failing operand", func(t *testing.T) {
		_, err := policy.Parse("ALL(LOGIN, NOPE(x))")
		require.ErrorContains(t, err, "operand 2")
	})
}
