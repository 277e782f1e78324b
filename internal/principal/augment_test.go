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

package principal_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/warden/internal/principal"
)

func TestParseStatus(t *testing.T) {
	t.Run("accepts known labels", func(t *testing.T) {
		for label, want := range map[string]principal.Status{
			"active":     principal.StatusActive,
			"Inactive":   principal.StatusInactive,
			" SUSPENDED": principal.StatusSuspended,
			"banned":     principal.StatusBanned,
		} {
			got, err := principal.ParseStatus(label)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("rejects unknown labels", func(t *testing.T) {
		_, err := principal.ParseStatus("frozen")
		require.ErrorContains(t, err, "unknown account status")
	})
}

func TestAugment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	active := func(attrs map[string]any) principal.Principal {
		return principal.Principal{
			ID:          "u1",
			Status:      principal.StatusActive,
			Roles:       []string{"user"},
			Permissions: []string{"content_read"},
			Attributes:  attrs,
		}
	}

	t.Run("carries the stored sets", func(t *testing.T) {
		aug := principal.Augment(active(nil), now)
		assert.True(t, aug.HasRole("user"))
		assert.True(t, aug.HasPermission("content_read"))
		assert.False(t, aug.HasRole("vip"))
	})

	t.Run("grants vip while the expiry lies ahead", func(t *testing.T) {
		expiry := now.Add(time.Second)
		aug := principal.Augment(active(map[string]any{
			principal.AttrVIPExpireTime: expiry.Format(time.RFC3339),
		}), now)
		assert.True(t, aug.HasRole(principal.RoleVIP))
		assert.True(t, aug.HasPermission(principal.PermWalletManage))
	})

	t.Run("expiry boundary is exact", func(t *testing.T) {
		expiry := now

		// One second before expiry the elevation holds.
		aug := principal.Augment(active(map[string]any{
			principal.AttrVIPExpireTime: expiry.Format(time.RFC3339),
		}), expiry.Add(-time.Second))
		assert.True(t, aug.HasRole(principal.RoleVIP))

		// At the expiry instant it is gone; the comparison is strict.
		aug = principal.Augment(active(map[string]any{
			principal.AttrVIPExpireTime: expiry.Format(time.RFC3339),
		}), expiry)
		assert.False(t, aug.HasRole(principal.RoleVIP))

		// And one second past expiry it stays gone.
		aug = principal.Augment(active(map[string]any{
			principal.AttrVIPExpireTime: expiry.Format(time.RFC3339),
		}), expiry.Add(time.Second))
		assert.False(t, aug.HasRole(principal.RoleVIP))
		assert.False(t, aug.HasPermission(principal.PermWalletManage))
	})

	t.Run("accepts unix seconds", func(t *testing.T) {
		expiry := now.Add(time.Hour)
		aug := principal.Augment(active(map[string]any{
			principal.AttrVIPExpireTime: json.Number(
				fmt.Sprintf("%d", expiry.Unix()),
			),
		}), now)
		assert.True(t, aug.HasRole(principal.RoleVIP))
	})

	t.Run("malformed expiry grants nothing", func(t *testing.T) {
		aug := principal.Augment(active(map[string]any{
			principal.AttrVIPExpireTime: "not-a-timestamp",
		}), now)
		assert.False(t, aug.HasRole(principal.RoleVIP))
		// The stored sets are untouched by the failed derivation.
		assert.True(t, aug.HasRole("user"))
	})

	t.Run("missing attribute grants nothing", func(t *testing.T) {
		aug := principal.Augment(active(nil), now)
		assert.False(t, aug.HasRole(principal.RoleVIP))
	})

	t.Run("derivation only adds", func(t *testing.T) {
		expiry := now.Add(time.Hour)
		p := active(map[string]any{
			principal.AttrVIPExpireTime: expiry.Format(time.RFC3339),
		})
		aug := principal.Augment(p, now)
		for _, r := range p.Roles {
			assert.True(t, aug.HasRole(r))
		}
		for _, m := range p.Permissions {
			assert.True(t, aug.HasPermission(m))
		}
	})

	t.Run("non-active accounts carry nothing", func(t *testing.T) {
		expiry := now.Add(time.Hour)
		for _, status := range []principal.Status{
			principal.StatusInactive,
			principal.StatusSuspended,
			principal.StatusBanned,
		} {
			p := principal.Principal{
				ID:          "u2",
				Status:      status,
				Roles:       []string{"admin"},
				Permissions: []string{"wallet_manage"},
				Attributes: map[string]any{
					principal.AttrVIPExpireTime: expiry.Format(time.RFC3339),
				},
			}
			aug := principal.Augment(p, now)
			assert.Empty(t, aug.Roles, "status %s", status)
			assert.Empty(t, aug.Permissions, "status %s", status)
		}
	})
}
