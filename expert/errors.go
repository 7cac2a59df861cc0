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

import "fmt"

// ErrorCode enumerates the error kinds and dispositions of the agent, one
// per row of the error handling design: each is terminal for the current
// turn and observable only through the log stream, never retried by the
// core.
type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeCrypto              ErrorCode = "CRYPTO_ERROR"
	ErrCodePaymentHashMismatch ErrorCode = "PAYMENT_HASH_MISMATCH"
	ErrCodePaymentUnsettled    ErrorCode = "PAYMENT_UNSETTLED"
	ErrCodePaymentBackend      ErrorCode = "PAYMENT_BACKEND_ERROR"
	ErrCodePublishFailure      ErrorCode = "PUBLISH_FAILURE"
	ErrCodeHandler             ErrorCode = "HANDLER_ERROR"
)

// AgentError is a structured error carrying an ErrorCode so callers and
// tests can branch on disposition with errors.As instead of string
// matching, while still composing with the standard library via Unwrap.
type AgentError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Cause }

// NewAgentError constructs an AgentError, optionally wrapping cause.
func NewAgentError(code ErrorCode, message string, cause error) *AgentError {
	return &AgentError{Code: code, Message: message, Cause: cause}
}
