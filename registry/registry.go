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

package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/internal/metrics"
)

// turnCorrelationSalt is a fixed, non-secret salt for deriveTurnLabel. It
// exists only to namespace the derivation; it carries no confidentiality
// requirement since the label is for log correlation, never for the wire
// protocol.
var turnCorrelationSalt = []byte("libaskexperts/turn-correlation/v1")

// deriveTurnLabel derives a short, deterministic label from contextID via
// HKDF. Insert logs it on the "conversation armed" line, next to the full
// context id.
func deriveTurnLabel(contextID string) string {
	r := hkdf.New(sha256.New, []byte(contextID), turnCorrelationSalt, nil)
	out := make([]byte, 6)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf.New with a sha256.New hash never fails to produce 6 bytes;
		// this branch exists only to satisfy io.ReadFull's signature.
		return contextID
	}
	return hex.EncodeToString(out)
}

// Registry is the in-memory map of live conversations keyed by current
// context id (invariant 1: at most one Conversation per context id). All
// mutators take the same mutex, so even though relay callbacks and timer
// callbacks run on separate goroutines, removal and handler dispatch never
// race: whichever caller wins the lock deletes the entry and proceeds,
// the loser finds nothing and does nothing.
type Registry struct {
	mu   sync.Mutex
	conv map[string]*Conversation
	log  logger.Logger
}

// New constructs an empty Registry.
func New(log logger.Logger) *Registry {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Registry{
		conv: make(map[string]*Conversation),
		log:  log,
	}
}

// Insert registers conv under contextID and arms its subscription/timer.
// onTimeout is invoked (with the registry lock already released) if the
// timer fires before the conversation is removed by RemoveIfPresent.
func (r *Registry) Insert(contextID string, conv *Conversation, sub Closer, timeout time.Duration, onTimeout func(*Conversation)) {
	r.mu.Lock()
	conv.ContextID = contextID
	conv.arm(sub, timeout, func() { r.fireTimeout(contextID, conv, onTimeout) })
	r.conv[contextID] = conv
	n := len(r.conv)
	r.mu.Unlock()

	metrics.ConversationsActive.Set(float64(n))
	r.log.Debug("conversation armed",
		logger.ContextID(contextID),
		logger.TurnID(conv.TurnID),
		logger.String("turn_label", deriveTurnLabel(contextID)),
	)
}

func (r *Registry) fireTimeout(contextID string, conv *Conversation, onTimeout func(*Conversation)) {
	r.mu.Lock()
	existing, ok := r.conv[contextID]
	if ok && existing == conv {
		delete(r.conv, contextID)
	} else {
		ok = false
	}
	n := len(r.conv)
	r.mu.Unlock()

	if !ok {
		return
	}
	metrics.ConversationsActive.Set(float64(n))
	conv.disarm()
	r.log.Info("conversation timed out", logger.ContextID(contextID))
	if onTimeout != nil {
		onTimeout(conv)
	}
}

// RemoveIfPresent atomically removes and disarms the conversation
// registered under contextID, if any. This must run before the caller
// invokes any handler for the turn, so a second concurrently-arriving
// event for the same context id finds the registry empty (P2).
func (r *Registry) RemoveIfPresent(contextID string) (*Conversation, bool) {
	r.mu.Lock()
	conv, ok := r.conv[contextID]
	if ok {
		delete(r.conv, contextID)
	}
	n := len(r.conv)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	metrics.ConversationsActive.Set(float64(n))
	conv.disarm()
	return conv, true
}

// Get looks up the conversation registered under contextID without
// removing it.
func (r *Registry) Get(contextID string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conv[contextID]
	return conv, ok
}

// Len reports how many conversations are currently armed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conv)
}

// Clear disarms and removes every conversation, for Lifecycle.stop.
func (r *Registry) Clear() {
	r.mu.Lock()
	all := r.conv
	r.conv = make(map[string]*Conversation)
	r.mu.Unlock()

	for _, conv := range all {
		conv.disarm()
	}
	metrics.ConversationsActive.Set(0)
}
