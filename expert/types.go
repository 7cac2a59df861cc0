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

// Package expert implements the Expert Agent Core: the state machine that
// consumes ask events, produces bids, tracks armed conversations, verifies
// incoming questions against payment state, invokes user-supplied handlers,
// and publishes answers with optional paid follow-up turns.
package expert

import (
	"context"
	"fmt"
	"time"

	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/registry"
)

// DecisionFunc is the user-supplied handler consulted for every inbound
// Ask. Returning (nil, nil) means "no bid"; an error is treated identically
// to "no bid" (HandlerError, §7).
type DecisionFunc func(ctx context.Context, ask registry.Ask) (*registry.BidDecision, error)

// AnswerFunc is the user-supplied handler consulted for every validated,
// payment-settled Question. history is the accumulated (Question, Answer)
// pairs for the conversation so far, empty on the first turn. An error
// abandons the turn (HandlerError, §7): no Answer is published.
type AnswerFunc func(ctx context.Context, ask registry.Ask, bidPayload registry.BidDecision, question registry.Question, history []registry.Turn) (registry.Answer, error)

// Config is the Expert Agent's initialization configuration (§6).
type Config struct {
	// NWCString is the Nostr Wallet Connect connection URI for the payment
	// backend.
	NWCString string
	// ExpertPrivKey is the hex-encoded 32-byte secret scalar for the
	// expert's long-term keypair.
	ExpertPrivKey string
	// AskRelays are listened to for inbound Ask events.
	AskRelays []string
	// QuestionRelays are advertised in bid payloads and used for the
	// question/answer phase of every conversation.
	QuestionRelays []string
	// Hashtags is the topic tag set for the topic subscription. Empty
	// disables that subscription; the direct-address subscription is
	// always active.
	Hashtags []string
	// OnAsk is the decision handler.
	OnAsk DecisionFunc
	// OnQuestion is the answer handler.
	OnQuestion AnswerFunc
	// BidTimeout bounds how long an armed turn waits for its question
	// before the conversation is dropped. Defaults to 600s.
	BidTimeout time.Duration

	// Logger overrides the package default logger. Optional.
	Logger logger.Logger
}

// validate checks the required fields and applies defaults, per §6 and §7
// ("only configuration validation may fail synchronously at construction").
func (c *Config) validate() error {
	if c.NWCString == "" {
		return fmt.Errorf("expert: nwc_string is required")
	}
	if c.ExpertPrivKey == "" {
		return fmt.Errorf("expert: expert_privkey is required")
	}
	if len(c.AskRelays) == 0 {
		return fmt.Errorf("expert: ask_relays is required")
	}
	if len(c.QuestionRelays) == 0 {
		return fmt.Errorf("expert: question_relays is required")
	}
	if c.OnAsk == nil {
		return fmt.Errorf("expert: on_ask handler is required")
	}
	if c.OnQuestion == nil {
		return fmt.Errorf("expert: on_question handler is required")
	}
	if c.BidTimeout <= 0 {
		c.BidTimeout = 600 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.GetDefaultLogger()
	}
	return nil
}
