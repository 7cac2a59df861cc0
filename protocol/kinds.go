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

// Package protocol implements the Event Codec: building, signing,
// encrypting, decrypting, and validating the five event kinds of the paid
// Q&A protocol. The codec is pure and synchronous; it never performs I/O.
package protocol

// Event kind codes. Fixed by the wire protocol — an interoperability spec
// with other participants on the relay network, so these must never change.
const (
	KindAsk        = 20174
	KindBid        = 20175
	KindBidPayload = 20176
	KindQuestion   = 20177
	KindAnswer     = 20178
)
