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

// Package registry implements the Conversation Registry: the in-memory map
// of live conversations keyed by current context id, with per-conversation
// subscription and timer ownership.
package registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrband/libaskexperts/protocol"
)

// Ask is the handler-visible projection of an inbound Ask event.
type Ask struct {
	ID        string
	PubKey    string
	Content   string
	CreatedAt int64
	Tags      protocol.TagList
}

// BidDecision is what the decision handler returns for an Ask it chooses to
// bid on. A nil *BidDecision from the handler means "no bid".
type BidDecision struct {
	Content string
	Sats    int64
	Tags    protocol.TagList // additional tags merged into the Bid Payload
}

// Question is the handler-visible projection of a validated, decrypted,
// payment-verified inbound Question.
type Question struct {
	ID      string
	Content string
	Tags    protocol.TagList
}

// Answer is what the answer handler returns for a Question.
type Answer struct {
	Content      string
	Tags         protocol.TagList
	FollowupSats int64 // > 0 offers a paid follow-up turn
}

// Turn is one (Question, Answer) pair in a Conversation's history.
type Turn struct {
	Question Question
	Answer   Answer
}

// Closer is satisfied by a relay subscription handle. Idempotent Close is
// required by callers (relaymux.Subscription provides this).
type Closer interface {
	Close()
}

// Conversation is the per-ask state of an expert turn: everything the
// Bid Pipeline and Question→Answer Pipeline need to carry from arming
// through to resolution, plus the resources (subscription, timer) owned
// for the conversation's current turn.
type Conversation struct {
	Ask           Ask
	BidPayload    nostr.Event // signed, kind 20176
	Decision      BidDecision
	SessionPubKey string // the asker's pubkey; immutable for the conversation's lifetime
	PaymentHash   string // rotates on each paid turn
	CreatedAt     time.Time
	ContextID     string // mutable: event id the next question must tag
	History       []Turn

	// TurnID is a turn-correlation identifier, stable across every re-arm of
	// this conversation's follow-up turns. It is logged on the registry's
	// "conversation armed" line, so the arming of each turn can be matched
	// without joining on the mutable ContextID.
	TurnID string

	sub   Closer
	timer *time.Timer
}

// NewConversation constructs a Conversation at bid time, with context id
// equal to the signed Bid Payload's event id per §3.
func NewConversation(ask Ask, bidPayload nostr.Event, decision BidDecision, sessionPubKey, paymentHash string) *Conversation {
	return &Conversation{
		Ask:           ask,
		BidPayload:    bidPayload,
		Decision:      decision,
		SessionPubKey: sessionPubKey,
		PaymentHash:   paymentHash,
		CreatedAt:     time.Now(),
		ContextID:     bidPayload.ID,
		TurnID:        uuid.NewString(),
	}
}

// Age reports how long the conversation has existed since NewConversation,
// for duration metrics at turn resolution.
func (c *Conversation) Age() time.Duration {
	return time.Since(c.CreatedAt)
}

// arm attaches the subscription and timer owned by the conversation's
// current turn. Any previously armed resources must already be released by
// the caller (disarm), since a Conversation only ever owns one live
// subscription/timer pair at a time.
func (c *Conversation) arm(sub Closer, timeout time.Duration, onTimeout func()) {
	c.sub = sub
	c.timer = time.AfterFunc(timeout, onTimeout)
}

// disarm releases the conversation's subscription and cancels its timer.
// Safe to call multiple times.
func (c *Conversation) disarm() {
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
