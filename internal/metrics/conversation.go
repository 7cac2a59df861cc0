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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AsksReceived counts inbound Ask events routed to the Bid Pipeline.
	AsksReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "asks",
			Name:      "received_total",
			Help:      "Total number of ask events received",
		},
	)

	// BidsPublished counts bid attempts, by outcome (only "accepted" means
	// at least one relay accepted the bid).
	BidsPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bids",
			Name:      "published_total",
			Help:      "Total number of bids published, by outcome",
		},
		[]string{"outcome"}, // accepted, declined, publish_failed, payment_failed
	)

	// ConversationsActive tracks currently armed conversations.
	ConversationsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "active",
			Help:      "Number of currently armed conversations",
		},
	)

	// QuestionsReceived counts inbound question events, by disposition.
	QuestionsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "questions",
			Name:      "received_total",
			Help:      "Total number of question events received, by disposition",
		},
		[]string{"disposition"}, // accepted, discarded, crypto_error, payment_mismatch, unsettled
	)

	// AnswersPublished counts answer publish attempts, by outcome ("published"
	// means at least one relay accepted the answer).
	AnswersPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answers",
			Name:      "published_total",
			Help:      "Total number of answers published, by outcome",
		},
		[]string{"outcome"}, // published, publish_failed
	)

	// PaymentChecksTotal counts invoice settlement lookups, by result.
	PaymentChecksTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "checks_total",
			Help:      "Total number of lookup_invoice calls, by result",
		},
		[]string{"result"}, // settled, unsettled, backend_error
	)

	// ConversationDuration tracks wall-clock time from arming to turn
	// resolution (answered, abandoned, or timed out).
	ConversationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "duration_seconds",
			Help:      "Time from arming to turn resolution",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~54min
		},
		[]string{"resolution"}, // answered, timed_out, abandoned
	)
)
