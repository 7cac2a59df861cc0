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

package expert

import (
	"context"
	"fmt"
	"sync"

	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/paymentgw"
	"github.com/nostrband/libaskexperts/protocol"
	"github.com/nostrband/libaskexperts/registry"
	"github.com/nostrband/libaskexperts/relaymux"
)

// Agent is the Expert Agent Core: Ask Listener, Bid Pipeline,
// Question→Answer Pipeline, Conversation Registry, and Lifecycle wired
// together over one relay pool and one payment gateway connection.
type Agent struct {
	cfg Config
	log logger.Logger

	expertPriv string
	expertPub  string

	pool relayPool
	pay  paymentClient
	reg  *registry.Registry

	mu        sync.Mutex
	started   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	topicSub  registry.Closer
	directSub registry.Closer
}

// New validates cfg and constructs an Agent wired to live relay and NWC
// connections. Only configuration validation fails synchronously at
// construction (§7); everything else is logged and swallowed at runtime.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	expertPub, err := protocol.PubKeyFromSecret(cfg.ExpertPrivKey)
	if err != nil {
		return nil, fmt.Errorf("expert: invalid expert_privkey: %w", err)
	}

	pool := livePool{Pool: relaymux.NewPool(cfg.Logger)}
	pay, err := paymentgw.New(cfg.NWCString, pool, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("expert: invalid nwc_string: %w", err)
	}

	return &Agent{
		cfg:        cfg,
		log:        cfg.Logger,
		expertPriv: cfg.ExpertPrivKey,
		expertPub:  expertPub,
		pool:       pool,
		pay:        pay,
		reg:        registry.New(cfg.Logger),
	}, nil
}

// PubKey returns the expert's long-term public key, hex-encoded.
func (a *Agent) PubKey() string {
	return a.expertPub
}

// RelayConnected reports whether the pool holds a live connection to url,
// for wiring into health.RelayHealthCheck.
func (a *Agent) RelayConnected(url string) bool {
	return a.pool.Connected(url)
}

// PingWallet probes the payment gateway's reachability, for wiring into
// health.NWCHealthCheck.
func (a *Agent) PingWallet(ctx context.Context) error {
	return a.pay.Ping(ctx)
}

// Start opens the payment gateway connection and the two ask subscriptions
// (§4.7). Calling Start twice is a no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())

	if err := a.pay.Connect(runCtx); err != nil {
		cancel()
		return fmt.Errorf("expert: connect payment gateway: %w", err)
	}

	a.runCtx = runCtx
	if err := a.startAskListener(runCtx); err != nil {
		cancel()
		a.pay.Close()
		return fmt.Errorf("expert: start ask listener: %w", err)
	}

	a.cancel = cancel
	a.started = true
	a.log.Info("expert agent started", logger.String("pubkey", a.expertPub))
	return nil
}

// Stop closes every ask subscription, every live question subscription,
// cancels every timer, clears the registry, and releases relay connections
// for both the ask and question relay sets. Idempotent. In-flight handler
// calls are not cancelled; their results are ignored on return because the
// owning Conversation is gone from the registry.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.started = false

	if a.topicSub != nil {
		a.topicSub.Close()
	}
	if a.directSub != nil {
		a.directSub.Close()
	}
	a.reg.Clear()
	a.pay.Close()
	a.pool.CloseAll(a.cfg.AskRelays)
	a.pool.CloseAll(a.cfg.QuestionRelays)
	a.pool.Close()
	if a.cancel != nil {
		a.cancel()
	}
	a.log.Info("expert agent stopped")
}
