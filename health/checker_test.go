// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_CheckPassAndFail(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.SetCacheTTL(0)

	h.RegisterCheck("ok", func(ctx context.Context) error { return nil })
	h.RegisterCheck("bad", func(ctx context.Context) error { return errors.New("boom") })

	okResult, err := h.Check(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, okResult.Status)

	badResult, err := h.Check(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, badResult.Status)
	assert.Equal(t, "boom", badResult.Message)
}

func TestHealthChecker_CheckUnregistered(t *testing.T) {
	h := NewHealthChecker(time.Second)
	_, err := h.Check(context.Background(), "missing")
	assert.Error(t, err)
}

func TestHealthChecker_GetOverallStatus(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.SetCacheTTL(0)
	h.RegisterCheck("ok", func(ctx context.Context) error { return nil })

	assert.Equal(t, StatusHealthy, h.GetOverallStatus(context.Background()))

	h.RegisterCheck("bad", func(ctx context.Context) error { return errors.New("down") })
	assert.Equal(t, StatusUnhealthy, h.GetOverallStatus(context.Background()))
}

func TestHealthChecker_CacheReusesResult(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.SetCacheTTL(time.Minute)

	calls := 0
	h.RegisterCheck("counted", func(ctx context.Context) error {
		calls++
		return nil
	})

	_, err := h.Check(context.Background(), "counted")
	require.NoError(t, err)
	_, err = h.Check(context.Background(), "counted")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)

	h.ClearCache()
	_, err = h.Check(context.Background(), "counted")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRelayHealthCheck(t *testing.T) {
	relays := []string{"wss://a.example.com", "wss://b.example.com"}

	healthy := RelayHealthCheck(relays, func(r string) bool { return r == "wss://b.example.com" })
	assert.NoError(t, healthy(context.Background()))

	unhealthy := RelayHealthCheck(relays, func(r string) bool { return false })
	assert.Error(t, unhealthy(context.Background()))
}

func TestNWCHealthCheck(t *testing.T) {
	ok := NWCHealthCheck(func(ctx context.Context) error { return nil })
	assert.NoError(t, ok(context.Background()))

	unconfigured := NWCHealthCheck(nil)
	assert.Error(t, unconfigured(context.Background()))
}
