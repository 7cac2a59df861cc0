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

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrband/libaskexperts/crypto/keys"
	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/internal/metrics"
	"github.com/nostrband/libaskexperts/protocol"
	"github.com/nostrband/libaskexperts/registry"
)

// arm opens a question subscription filtered to contextID and inserts conv
// into the registry under that key, per §4.6 Arming. contextID is also the
// filter value baked into the subscription closure below, so the callback
// always looks the conversation up by the key it was armed under.
func (a *Agent) arm(conv *registry.Conversation, contextID string) error {
	filter := nostr.Filter{
		Kinds: []int{protocol.KindQuestion},
		Tags:  nostr.TagMap{"e": []string{contextID}},
	}
	sub, err := a.pool.Subscribe(a.runCtx, a.cfg.QuestionRelays, filter, func(evt *nostr.Event) {
		a.handleQuestion(contextID, evt)
	}, nil)
	if err != nil {
		return err
	}
	a.reg.Insert(contextID, conv, sub, a.cfg.BidTimeout, a.onConversationTimeout)
	return nil
}

func (a *Agent) onConversationTimeout(conv *registry.Conversation) {
	metrics.ConversationDuration.WithLabelValues("timed_out").Observe(conv.Age().Seconds())
}

// handleQuestion runs the Question→Answer Pipeline (§4.6) for one inbound
// Question event tagging contextID.
func (a *Agent) handleQuestion(contextID string, evt *nostr.Event) {
	eTag, ok := protocol.TagsOf(evt).First("e")
	if !ok || eTag != contextID {
		metrics.QuestionsReceived.WithLabelValues("discarded").Inc()
		return
	}

	// Remove before any further validation or handler invocation, so a
	// second inbound event tagging the same context id finds the registry
	// empty (P2, §5 Ordering).
	conv, ok := a.reg.RemoveIfPresent(contextID)
	if !ok {
		metrics.QuestionsReceived.WithLabelValues("discarded").Inc()
		return
	}

	if evt.Kind != protocol.KindQuestion {
		a.abandon(conv, "discarded", "unexpected kind on question subscription", nil)
		return
	}

	plaintext, err := protocol.Decrypt(evt.Content, a.expertPriv, conv.SessionPubKey)
	if err != nil {
		a.abandon(conv, "crypto_error", "question decrypt failed", err)
		return
	}

	payload, err := protocol.UnmarshalQuestionPayload([]byte(plaintext))
	if err != nil {
		a.abandon(conv, "discarded", "question payload parse failed", err)
		return
	}

	preimage, ok := payload.Preimage()
	if !ok {
		a.abandon(conv, "discarded", "question payload missing preimage tag", nil)
		return
	}

	if !protocol.HashPreimage(preimage, conv.PaymentHash) {
		a.abandon(conv, "payment_mismatch", "preimage does not match payment hash", nil)
		return
	}

	ctx := a.runCtx
	lookup, err := a.pay.LookupInvoice(ctx, conv.PaymentHash)
	if err != nil {
		metrics.PaymentChecksTotal.WithLabelValues("backend_error").Inc()
		metrics.QuestionsReceived.WithLabelValues("unsettled").Inc()
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
		agentErr := NewAgentError(ErrCodePaymentBackend, "lookup_invoice transport error", err)
		a.log.Warn(agentErr.Error(), logger.ContextID(conv.ContextID))
		return
	}
	if !lookup.IsPaid() {
		metrics.PaymentChecksTotal.WithLabelValues("unsettled").Inc()
		a.abandon(conv, "unsettled", "invoice not settled", nil)
		return
	}
	metrics.PaymentChecksTotal.WithLabelValues("settled").Inc()
	metrics.QuestionsReceived.WithLabelValues("accepted").Inc()

	question := registry.Question{
		ID:      evt.ID,
		Content: payload.Content,
		Tags:    payload.Tags,
	}

	answer, err := a.cfg.OnQuestion(ctx, conv.Ask, conv.Decision, question, conv.History)
	if err != nil {
		a.abandon(conv, "discarded", "on_question handler error", err)
		return
	}

	a.publishAnswer(ctx, conv, question, answer)
}

// publishAnswer builds, signs, and publishes the Answer event, then either
// re-arms the Conversation for a follow-up turn or lets it stay retired.
func (a *Agent) publishAnswer(ctx context.Context, conv *registry.Conversation, question registry.Question, answer registry.Answer) {
	answerTags := append(protocol.TagList{}, answer.Tags...)

	var followupHash string
	var mintedFollowup bool
	if answer.FollowupSats > 0 {
		invoice, err := a.pay.MakeInvoice(ctx, answer.FollowupSats*1000, fmt.Sprintf("Follow-up for question %s", question.ID))
		if err != nil {
			a.log.Warn("make_invoice failed for follow-up", logger.ContextID(conv.ContextID), logger.Error(err))
		} else {
			answerTags = append(answerTags, []string{"invoice", invoice.Invoice})
			followupHash = invoice.PaymentHash
			mintedFollowup = true
		}
	}

	payload := protocol.AnswerPayload{Content: answer.Content, Tags: answerTags}
	payloadJSON, err := payload.Marshal()
	if err != nil {
		a.log.Error("failed to marshal answer payload", logger.ContextID(conv.ContextID), logger.Error(err))
		metrics.AnswersPublished.WithLabelValues("publish_failed").Inc()
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
		return
	}

	ciphertext, err := protocol.Encrypt(string(payloadJSON), a.expertPriv, conv.SessionPubKey)
	if err != nil {
		a.log.Error("failed to encrypt answer", logger.ContextID(conv.ContextID), logger.Error(err))
		metrics.AnswersPublished.WithLabelValues("publish_failed").Inc()
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
		return
	}

	ansKey, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		a.log.Error("failed to generate answer ephemeral key", logger.ContextID(conv.ContextID), logger.Error(err))
		metrics.AnswersPublished.WithLabelValues("publish_failed").Inc()
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
		return
	}

	unsigned := protocol.BuildUnsigned(protocol.KindAnswer, ansKey.PubKeyHex(), protocol.TagList{{"e", question.ID}}, ciphertext)
	signed, err := protocol.Sign(unsigned, ansKey.PrivKeyHex())
	if err != nil {
		a.log.Error("failed to sign answer", logger.ContextID(conv.ContextID), logger.Error(err))
		metrics.AnswersPublished.WithLabelValues("publish_failed").Inc()
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
		return
	}

	result := a.pool.Publish(ctx, a.cfg.QuestionRelays, signed)
	conv.History = append(conv.History, registry.Turn{Question: question, Answer: answer})

	if !result.Accepted() {
		a.log.Warn("answer publish rejected by all relays", logger.ContextID(conv.ContextID))
		metrics.AnswersPublished.WithLabelValues("publish_failed").Inc()
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
		return
	}
	metrics.AnswersPublished.WithLabelValues("published").Inc()

	if !mintedFollowup {
		metrics.ConversationDuration.WithLabelValues("answered").Observe(conv.Age().Seconds())
		return
	}

	conv.PaymentHash = followupHash
	if err := a.arm(conv, signed.ID); err != nil {
		a.log.Error("failed to re-arm conversation for follow-up", logger.EventID(signed.ID), logger.Error(err))
		metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())
	}
}

// dispositionCodes maps a metrics disposition label to the ErrorCode of the
// error handling design table (§7) it corresponds to.
var dispositionCodes = map[string]ErrorCode{
	"discarded":        ErrCodeValidation,
	"crypto_error":     ErrCodeCrypto,
	"payment_mismatch": ErrCodePaymentHashMismatch,
	"unsettled":        ErrCodePaymentUnsettled,
}

// abandon logs and records the disposition for a turn that cannot proceed.
// The Conversation has already been removed from the registry by the
// caller; abandon never re-arms it.
func (a *Agent) abandon(conv *registry.Conversation, disposition, reason string, cause error) {
	metrics.QuestionsReceived.WithLabelValues(disposition).Inc()
	metrics.ConversationDuration.WithLabelValues("abandoned").Observe(conv.Age().Seconds())

	agentErr := NewAgentError(dispositionCodes[disposition], reason, cause)
	a.log.Warn(agentErr.Error(), logger.ContextID(conv.ContextID))
}
