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

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrband/libaskexperts/paymentgw"
	"github.com/nostrband/libaskexperts/registry"
	"github.com/nostrband/libaskexperts/relaymux"
)

// relayPool is the subset of relaymux.Pool the Agent depends on, narrowed
// to registry.Closer so callers (and tests) don't need a concrete
// *relaymux.Subscription to stand in for a live one.
type relayPool interface {
	Subscribe(ctx context.Context, urls []string, filter nostr.Filter, onEvent func(*nostr.Event), onEOSE func()) (registry.Closer, error)
	Publish(ctx context.Context, urls []string, evt nostr.Event) relaymux.PublishResult
	CloseAll(urls []string)
	Close()
	Connected(url string) bool
}

// paymentClient is the subset of paymentgw.Client the Agent depends on.
type paymentClient interface {
	Connect(ctx context.Context) error
	Close()
	MakeInvoice(ctx context.Context, amountMsat int64, description string) (paymentgw.MakeInvoiceResult, error)
	LookupInvoice(ctx context.Context, paymentHash string) (paymentgw.LookupInvoiceResult, error)
	Ping(ctx context.Context) error
}

// livePool adapts *relaymux.Pool's concrete *relaymux.Subscription return
// value to the registry.Closer interface relayPool expects.
type livePool struct {
	*relaymux.Pool
}

func (p livePool) Subscribe(ctx context.Context, urls []string, filter nostr.Filter, onEvent func(*nostr.Event), onEOSE func()) (registry.Closer, error) {
	return p.Pool.Subscribe(ctx, urls, filter, onEvent, onEOSE)
}
