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
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrband/libaskexperts/crypto/keys"
	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/internal/metrics"
	"github.com/nostrband/libaskexperts/protocol"
	"github.com/nostrband/libaskexperts/registry"
)

// handleAsk runs the Bid Pipeline (§4.5) for one inbound Ask event: consult
// the decision handler, mint an invoice, build and publish the Bid, and
// arm a Conversation on success.
func (a *Agent) handleAsk(ctx context.Context, evt *nostr.Event) {
	metrics.AsksReceived.Inc()

	ask := registry.Ask{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		Content:   evt.Content,
		CreatedAt: int64(evt.CreatedAt),
		Tags:      protocol.TagsOf(evt),
	}

	decision, err := a.cfg.OnAsk(ctx, ask)
	if err != nil {
		a.log.Warn("on_ask handler error, treating as no-bid", logger.EventID(ask.ID), logger.Error(err))
		return
	}
	if decision == nil {
		return
	}

	bidKey, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		a.log.Error("failed to generate bid ephemeral key", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("declined").Inc()
		return
	}

	invoice, err := a.pay.MakeInvoice(ctx, decision.Sats*1000, fmt.Sprintf("Bid for ask %s", ask.ID))
	if err != nil {
		a.log.Warn("make_invoice failed for bid", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("payment_failed").Inc()
		return
	}

	payloadTags := protocol.TagList{{"invoice", invoice.Invoice}}
	for _, r := range a.cfg.QuestionRelays {
		payloadTags = append(payloadTags, []string{"relay", r})
	}
	payloadTags = append(payloadTags, decision.Tags...)

	unsignedPayload := protocol.BuildUnsigned(protocol.KindBidPayload, a.expertPub, payloadTags, decision.Content)
	bidPayload, err := protocol.Sign(unsignedPayload, a.expertPriv)
	if err != nil {
		a.log.Error("failed to sign bid payload", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("declined").Inc()
		return
	}

	payloadJSON, err := json.Marshal(bidPayload)
	if err != nil {
		a.log.Error("failed to marshal bid payload", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("declined").Inc()
		return
	}

	ciphertext, err := protocol.Encrypt(string(payloadJSON), bidKey.PrivKeyHex(), ask.PubKey)
	if err != nil {
		a.log.Error("failed to encrypt bid", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("declined").Inc()
		return
	}

	unsignedBid := protocol.BuildUnsigned(protocol.KindBid, bidKey.PubKeyHex(), protocol.TagList{{"e", ask.ID}}, ciphertext)
	bid, err := protocol.Sign(unsignedBid, bidKey.PrivKeyHex())
	if err != nil {
		a.log.Error("failed to sign bid envelope", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("declined").Inc()
		return
	}

	result := a.pool.Publish(ctx, a.cfg.AskRelays, bid)
	if !result.Accepted() {
		a.log.Warn("bid publish rejected by all relays", logger.EventID(ask.ID))
		metrics.BidsPublished.WithLabelValues("publish_failed").Inc()
		return
	}

	conv := registry.NewConversation(ask, bidPayload, *decision, ask.PubKey, invoice.PaymentHash)
	if err := a.arm(conv, bidPayload.ID); err != nil {
		a.log.Error("failed to arm conversation", logger.EventID(ask.ID), logger.Error(err))
		metrics.BidsPublished.WithLabelValues("publish_failed").Inc()
		return
	}

	metrics.BidsPublished.WithLabelValues("accepted").Inc()
}
