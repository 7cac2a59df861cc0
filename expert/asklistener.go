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
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/protocol"
)

// askBackfillWindow bounds how far back the ask subscriptions look on
// start, per §4.4.
const askBackfillWindow = 10 * time.Second

// startAskListener opens the topic subscription (only when hashtags are
// configured) and the direct-address subscription, both filtering on
// kind = Ask with since = now - 10s. Every delivered event is routed to the
// Bid Pipeline; dedup across the two subscriptions is the Multiplexer's job.
func (a *Agent) startAskListener(ctx context.Context) error {
	since := nostr.Timestamp(time.Now().Add(-askBackfillWindow).Unix())

	if len(a.cfg.Hashtags) > 0 {
		filter := nostr.Filter{
			Kinds: []int{protocol.KindAsk},
			Tags:  nostr.TagMap{"t": a.cfg.Hashtags},
			Since: &since,
		}
		sub, err := a.pool.Subscribe(ctx, a.cfg.AskRelays, filter, a.onAskEvent, nil)
		if err != nil {
			return err
		}
		a.topicSub = sub
	}

	directFilter := nostr.Filter{
		Kinds: []int{protocol.KindAsk},
		Tags:  nostr.TagMap{"p": []string{a.expertPub}},
		Since: &since,
	}
	sub, err := a.pool.Subscribe(ctx, a.cfg.AskRelays, directFilter, a.onAskEvent, nil)
	if err != nil {
		if a.topicSub != nil {
			a.topicSub.Close()
			a.topicSub = nil
		}
		return err
	}
	a.directSub = sub
	return nil
}

// onAskEvent is the Multiplexer callback for both ask subscriptions. It
// performs no validation beyond the kind guard, per §4.4, and never lets a
// downstream failure propagate back to the relay read loop: every event
// runs the Bid Pipeline on its own goroutine so one slow decision handler
// never delays unrelated asks.
func (a *Agent) onAskEvent(evt *nostr.Event) {
	if evt.Kind != protocol.KindAsk {
		a.log.Warn("ask listener: unexpected kind", logger.EventID(evt.ID), logger.Kind(evt.Kind))
		return
	}
	go a.handleAsk(a.runCtx, evt)
}
