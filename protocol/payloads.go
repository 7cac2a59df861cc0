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

package protocol

import "encoding/json"

// TagList is the wire representation of a Nostr event's tag array: an
// ordered sequence of string arrays, e.g. [["e", "<id>"], ["invoice", "..."]].
type TagList [][]string

// First returns the first value of the first tag named key, and whether
// such a tag exists.
func (t TagList) First(key string) (string, bool) {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1], true
		}
	}
	return "", false
}

// All returns every first-value of tags named key, in order.
func (t TagList) All(key string) []string {
	var out []string
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == key {
			out = append(out, tag[1])
		}
	}
	return out
}

// QuestionPayload is the plaintext JSON structure carried inside a Question
// event's ciphertext. It is never itself a signed event: confidentiality
// comes from the outer event's encryption, not from an inner signature.
type QuestionPayload struct {
	Content string  `json:"content"`
	Tags    TagList `json:"tags"`
}

// Preimage extracts the payment preimage tag, if present.
func (p QuestionPayload) Preimage() (string, bool) {
	return p.Tags.First("preimage")
}

// Marshal encodes the payload as canonical JSON for encryption.
func (p QuestionPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalQuestionPayload parses a decrypted Question ciphertext body.
func UnmarshalQuestionPayload(data []byte) (QuestionPayload, error) {
	var p QuestionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return QuestionPayload{}, err
	}
	return p, nil
}

// AnswerPayload is the plaintext JSON structure carried inside an Answer
// event's ciphertext. When the expert offers a paid follow-up turn, an
// "invoice" tag is appended.
type AnswerPayload struct {
	Content string  `json:"content"`
	Tags    TagList `json:"tags"`
}

// Invoice extracts the follow-up invoice tag, if present.
func (p AnswerPayload) Invoice() (string, bool) {
	return p.Tags.First("invoice")
}

// Marshal encodes the payload as canonical JSON for encryption.
func (p AnswerPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalAnswerPayload parses a decrypted Answer ciphertext body.
func UnmarshalAnswerPayload(data []byte) (AnswerPayload, error) {
	var p AnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return AnswerPayload{}, err
	}
	return p, nil
}
