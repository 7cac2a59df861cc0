package paymentgw

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrband/libaskexperts/crypto/keys"
	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/protocol"
	"github.com/nostrband/libaskexperts/registry"
	"github.com/nostrband/libaskexperts/relaymux"
)

func TestParseNWCString(t *testing.T) {
	uri := "nostr+walletconnect://abc123?relay=wss://relay.example&relay=wss://relay2.example&secret=" +
		"1111111111111111111111111111111111111111111111111111111111111111"

	params, err := parseNWCString(uri)
	require.NoError(t, err)

	assert.Equal(t, "abc123", params.walletPubkey)
	assert.Equal(t, []string{"wss://relay.example", "wss://relay2.example"}, params.relays)
	assert.NotEmpty(t, params.clientSecret)
}

func TestParseNWCString_WrongScheme(t *testing.T) {
	_, err := parseNWCString("https://example.com")
	assert.Error(t, err)
}

func TestParseNWCString_MissingRelay(t *testing.T) {
	_, err := parseNWCString("nostr+walletconnect://abc123?secret=deadbeef")
	assert.Error(t, err)
}

func TestParseNWCString_MissingSecret(t *testing.T) {
	_, err := parseNWCString("nostr+walletconnect://abc123?relay=wss://relay.example")
	assert.Error(t, err)
}

func TestLookupInvoiceResult_IsPaid(t *testing.T) {
	assert.True(t, LookupInvoiceResult{SettledAt: 123}.IsPaid())
	assert.False(t, LookupInvoiceResult{SettledAt: 0}.IsPaid())
	assert.False(t, LookupInvoiceResult{SettledAt: -1}.IsPaid())
}

// fakeCloser is a registry.Closer standing in for a live subscription.
type fakeCloser struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeCloser) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// fakePool implements relayPool without any network I/O, recording every
// published event and letting the test hand back wallet responses by
// invoking the captured onEvent callback directly, exactly as relaymux.Pool
// would on a real relay delivery.
type fakePool struct {
	mu          sync.Mutex
	onEvent     func(*nostr.Event)
	published   []nostr.Event
	publishFail bool
}

func (p *fakePool) Subscribe(ctx context.Context, urls []string, filter nostr.Filter, onEvent func(*nostr.Event), onEOSE func()) (registry.Closer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEvent = onEvent
	return &fakeCloser{}, nil
}

func (p *fakePool) Publish(ctx context.Context, urls []string, evt nostr.Event) relaymux.PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, evt)
	if p.publishFail {
		return relaymux.PublishResult{Failed: map[string]error{urls[0]: fmt.Errorf("fake: relay rejected event")}}
	}
	return relaymux.PublishResult{Succeeded: []string{urls[0]}}
}

func (p *fakePool) lastPublished() nostr.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[len(p.published)-1]
}

func (p *fakePool) deliver(evt nostr.Event) {
	p.mu.Lock()
	cb := p.onEvent
	p.mu.Unlock()
	cb(&evt)
}

// walletReply decrypts req as the wallet would, asserts its method, and
// returns a signed NWC response event carrying result.
func walletReply(t *testing.T, walletPriv string, req nostr.Event, resultType string, result interface{}, wantMethod string) nostr.Event {
	t.Helper()

	plaintext, err := protocol.Decrypt(req.Content, walletPriv, req.PubKey)
	require.NoError(t, err)

	var body nwcRequest
	require.NoError(t, json.Unmarshal([]byte(plaintext), &body))
	assert.Equal(t, wantMethod, body.Method)

	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)
	respJSON, err := json.Marshal(nwcResponse{ResultType: resultType, Result: resultJSON})
	require.NoError(t, err)

	ciphertext, err := protocol.Encrypt(string(respJSON), walletPriv, req.PubKey)
	require.NoError(t, err)

	evt := protocol.BuildUnsigned(kindNWCResponse, func() string {
		pub, _ := protocol.PubKeyFromSecret(walletPriv)
		return pub
	}(), protocol.TagList{{"e", req.ID}, {"p", req.PubKey}}, ciphertext)
	signed, err := protocol.Sign(evt, walletPriv)
	require.NoError(t, err)
	return signed
}

func newTestClientAndWallet(t *testing.T) (*Client, *fakePool, string) {
	t.Helper()

	walletKey, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	clientKey, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	uri := fmt.Sprintf("nostr+walletconnect://%s?relay=wss://wallet.example&secret=%s",
		walletKey.PubKeyHex(), clientKey.PrivKeyHex())

	pool := &fakePool{}
	client, err := New(uri, pool, logger.GetDefaultLogger())
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))

	return client, pool, walletKey.PrivKeyHex()
}

func TestClient_MakeInvoice_RoundTrip(t *testing.T) {
	client, pool, walletPriv := newTestClientAndWallet(t)

	go func() {
		require.Eventually(t, func() bool {
			pool.mu.Lock()
			defer pool.mu.Unlock()
			return len(pool.published) == 1
		}, time.Second, time.Millisecond)

		req := pool.lastPublished()
		resp := walletReply(t, walletPriv, req, "make_invoice",
			MakeInvoiceResult{Invoice: "lnbc1fake", PaymentHash: "deadbeef"}, "make_invoice")
		pool.deliver(resp)
	}()

	res, err := client.MakeInvoice(context.Background(), 1000, "test")
	require.NoError(t, err)
	assert.Equal(t, "lnbc1fake", res.Invoice)
	assert.Equal(t, "deadbeef", res.PaymentHash)
}

func TestClient_LookupInvoice_RoundTrip(t *testing.T) {
	client, pool, walletPriv := newTestClientAndWallet(t)

	go func() {
		require.Eventually(t, func() bool {
			pool.mu.Lock()
			defer pool.mu.Unlock()
			return len(pool.published) == 1
		}, time.Second, time.Millisecond)

		req := pool.lastPublished()
		resp := walletReply(t, walletPriv, req, "lookup_invoice", LookupInvoiceResult{SettledAt: 1700000000}, "lookup_invoice")
		pool.deliver(resp)
	}()

	res, err := client.LookupInvoice(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.True(t, res.IsPaid())
}

func TestClient_Request_WalletErrorSurfaces(t *testing.T) {
	client, pool, walletPriv := newTestClientAndWallet(t)

	go func() {
		require.Eventually(t, func() bool {
			pool.mu.Lock()
			defer pool.mu.Unlock()
			return len(pool.published) == 1
		}, time.Second, time.Millisecond)

		req := pool.lastPublished()
		plaintext, err := protocol.Decrypt(req.Content, walletPriv, req.PubKey)
		require.NoError(t, err)
		var body nwcRequest
		require.NoError(t, json.Unmarshal([]byte(plaintext), &body))

		respJSON, err := json.Marshal(nwcResponse{
			ResultType: body.Method,
			Error:      &nwcError{Code: "PAYMENT_FAILED", Message: "insufficient balance"},
		})
		require.NoError(t, err)
		ciphertext, err := protocol.Encrypt(string(respJSON), walletPriv, req.PubKey)
		require.NoError(t, err)
		walletPub, err := protocol.PubKeyFromSecret(walletPriv)
		require.NoError(t, err)
		evt := protocol.BuildUnsigned(kindNWCResponse, walletPub, protocol.TagList{{"e", req.ID}, {"p", req.PubKey}}, ciphertext)
		signed, err := protocol.Sign(evt, walletPriv)
		require.NoError(t, err)
		pool.deliver(signed)
	}()

	_, err := client.MakeInvoice(context.Background(), 1000, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestClient_Request_NoRelayAccepted(t *testing.T) {
	client, pool, _ := newTestClientAndWallet(t)
	pool.publishFail = true

	_, err := client.MakeInvoice(context.Background(), 1000, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no relay accepted")
}

func TestClient_Request_TimesOut(t *testing.T) {
	client, _, _ := newTestClientAndWallet(t)
	client.timeout = 10 * time.Millisecond

	_, err := client.MakeInvoice(context.Background(), 1000, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestClient_Ping(t *testing.T) {
	client, pool, walletPriv := newTestClientAndWallet(t)

	go func() {
		require.Eventually(t, func() bool {
			pool.mu.Lock()
			defer pool.mu.Unlock()
			return len(pool.published) == 1
		}, time.Second, time.Millisecond)

		req := pool.lastPublished()
		resp := walletReply(t, walletPriv, req, "get_info", map[string]string{"alias": "fake wallet"}, "get_info")
		pool.deliver(resp)
	}()

	require.NoError(t, client.Ping(context.Background()))
}
