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

// Package paymentgw implements the Payment Gateway Adapter: the only place
// the core performs Lightning I/O, speaking Nostr Wallet Connect (NIP-47)
// to a wallet service over the relay network.
package paymentgw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrband/libaskexperts/crypto/keys"
	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/protocol"
	"github.com/nostrband/libaskexperts/registry"
	"github.com/nostrband/libaskexperts/relaymux"
)

const (
	kindNWCRequest  = 23194
	kindNWCResponse = 23195

	defaultRequestTimeout = 30 * time.Second
)

// Error wraps any transport or remote failure from the wallet backend.
// Every such failure surfaces through this type so callers can match it
// with errors.As without caring whether the root cause was a dial failure,
// a relay rejection, or a wallet-reported error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("paymentgw: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// connectionParams is the parsed form of an nostr+walletconnect:// URI.
type connectionParams struct {
	walletPubkey string
	relays       []string
	clientSecret string
}

// parseNWCString parses a Nostr Wallet Connect connection URI of the form
// nostr+walletconnect://<wallet-pubkey>?relay=wss://...&secret=<hex>, with
// relay repeatable for multiple wallet relays.
func parseNWCString(nwcString string) (connectionParams, error) {
	u, err := url.Parse(nwcString)
	if err != nil {
		return connectionParams{}, fmt.Errorf("parse nwc uri: %w", err)
	}
	if u.Scheme != "nostr+walletconnect" {
		return connectionParams{}, fmt.Errorf("unexpected scheme %q", u.Scheme)
	}
	pubkey := u.Host
	if pubkey == "" {
		pubkey = strings.TrimPrefix(u.Opaque, "//")
	}
	if pubkey == "" {
		return connectionParams{}, fmt.Errorf("missing wallet pubkey")
	}

	q := u.Query()
	relays := q["relay"]
	if len(relays) == 0 {
		return connectionParams{}, fmt.Errorf("missing relay parameter")
	}
	secret := q.Get("secret")
	if secret == "" {
		return connectionParams{}, fmt.Errorf("missing secret parameter")
	}

	return connectionParams{walletPubkey: pubkey, relays: relays, clientSecret: secret}, nil
}

// relayPool is the subset of relaymux.Pool the Client depends on, narrowed
// to registry.Closer the same way expert.relayPool is, so the NWC
// request/response path can be driven in tests against a fake pool instead
// of a live relay connection.
type relayPool interface {
	Subscribe(ctx context.Context, urls []string, filter nostr.Filter, onEvent func(*nostr.Event), onEOSE func()) (registry.Closer, error)
	Publish(ctx context.Context, urls []string, evt nostr.Event) relaymux.PublishResult
}

// Client is a Nostr Wallet Connect client bound to one wallet service.
type Client struct {
	params connectionParams

	pool    relayPool
	sub     registry.Closer
	log     logger.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan nwcResponse
}

type nwcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type nwcResponse struct {
	ResultType string          `json:"result_type"`
	Error      *nwcError       `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

type nwcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New parses nwcString and returns an unconnected Client. Call Connect
// before issuing requests.
func New(nwcString string, pool relayPool, log logger.Logger) (*Client, error) {
	params, err := parseNWCString(nwcString)
	if err != nil {
		return nil, &Error{Op: "parse", Err: err}
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Client{
		params:  params,
		pool:    pool,
		log:     log,
		timeout: defaultRequestTimeout,
		pending: make(map[string]chan nwcResponse),
	}, nil
}

// clientKeyPair derives the client identity from the NWC URI's secret
// parameter (the same key for every process using that URI), used both to
// sign requests and to derive the conversation key shared with the wallet
// service.
func (c *Client) clientKeyPair() (string, string, error) {
	kp, err := keys.NewFromPrivHex(c.params.clientSecret)
	if err != nil {
		return "", "", err
	}
	return kp.PrivKeyHex(), kp.PubKeyHex(), nil
}

// Connect opens the subscription that listens for wallet responses. It
// must be called once before MakeInvoice or LookupInvoice.
func (c *Client) Connect(ctx context.Context) error {
	_, clientPub, err := c.clientKeyPair()
	if err != nil {
		return &Error{Op: "connect", Err: err}
	}

	filter := nostr.Filter{
		Kinds: []int{kindNWCResponse},
		Tags:  nostr.TagMap{"p": []string{clientPub}},
	}

	sub, err := c.pool.Subscribe(ctx, c.params.relays, filter, c.onResponse, nil)
	if err != nil {
		return &Error{Op: "connect", Err: err}
	}
	c.sub = sub
	return nil
}

// Close releases the wallet response subscription.
func (c *Client) Close() {
	if c.sub != nil {
		c.sub.Close()
	}
}

func (c *Client) onResponse(evt *nostr.Event) {
	requestID, ok := protocol.TagsOf(evt).First("e")
	if !ok {
		return
	}

	clientPriv, _, err := c.clientKeyPair()
	if err != nil {
		return
	}
	plaintext, err := protocol.Decrypt(evt.Content, clientPriv, evt.PubKey)
	if err != nil {
		c.log.Warn("nwc response decrypt failed", logger.EventID(evt.ID), logger.Error(err))
		return
	}

	var resp nwcResponse
	if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
		c.log.Warn("nwc response parse failed", logger.EventID(evt.ID), logger.Error(err))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// request sends method/params to the wallet and blocks until the matching
// response arrives, the context is cancelled, or the request times out.
func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return nil, &Error{Op: method, Err: err}
	}
	reqBody, err := json.Marshal(nwcRequest{Method: method, Params: paramBytes})
	if err != nil {
		return nil, &Error{Op: method, Err: err}
	}

	clientPriv, clientPub, err := c.clientKeyPair()
	if err != nil {
		return nil, &Error{Op: method, Err: err}
	}

	ciphertext, err := protocol.Encrypt(string(reqBody), clientPriv, c.params.walletPubkey)
	if err != nil {
		return nil, &Error{Op: method, Err: err}
	}

	evt := protocol.BuildUnsigned(kindNWCRequest, clientPub, protocol.TagList{{"p", c.params.walletPubkey}}, ciphertext)
	signed, err := protocol.Sign(evt, clientPriv)
	if err != nil {
		return nil, &Error{Op: method, Err: err}
	}

	respCh := make(chan nwcResponse, 1)
	c.mu.Lock()
	c.pending[signed.ID] = respCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, signed.ID)
		c.mu.Unlock()
	}()

	result := c.pool.Publish(ctx, c.params.relays, signed)
	if !result.Accepted() {
		return nil, &Error{Op: method, Err: fmt.Errorf("no relay accepted request")}
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, &Error{Op: method, Err: fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)}
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, &Error{Op: method, Err: ctx.Err()}
	case <-time.After(c.timeout):
		return nil, &Error{Op: method, Err: fmt.Errorf("timed out waiting for wallet response")}
	}
}

// MakeInvoiceResult is the decoded result of a make_invoice call.
type MakeInvoiceResult struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
}

// MakeInvoice requests an invoice for amountMsat millisatoshis.
func (c *Client) MakeInvoice(ctx context.Context, amountMsat int64, description string) (MakeInvoiceResult, error) {
	raw, err := c.request(ctx, "make_invoice", map[string]interface{}{
		"amount":      amountMsat,
		"description": description,
	})
	if err != nil {
		return MakeInvoiceResult{}, err
	}
	var res MakeInvoiceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return MakeInvoiceResult{}, &Error{Op: "make_invoice", Err: err}
	}
	return res, nil
}

// LookupInvoiceResult is the decoded result of a lookup_invoice call.
type LookupInvoiceResult struct {
	SettledAt int64 `json:"settled_at"`
}

// IsPaid reports whether the lookup indicates a settled payment.
func (r LookupInvoiceResult) IsPaid() bool {
	return r.SettledAt > 0
}

// Ping probes wallet-service reachability with a get_info request, for use
// by health checks. The result is discarded; only whether the wallet
// answered at all matters.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, "get_info", nil)
	return err
}

// LookupInvoice checks the settlement status of the invoice identified by
// paymentHash. This is the authoritative payment check the core relies on.
func (c *Client) LookupInvoice(ctx context.Context, paymentHash string) (LookupInvoiceResult, error) {
	raw, err := c.request(ctx, "lookup_invoice", map[string]interface{}{
		"payment_hash": paymentHash,
	})
	if err != nil {
		return LookupInvoiceResult{}, err
	}
	var res LookupInvoiceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return LookupInvoiceResult{}, &Error{Op: "lookup_invoice", Err: err}
	}
	return res, nil
}
