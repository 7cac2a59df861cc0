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

// Package relaymux implements the Relay Multiplexer Adapter: one logical
// pub/sub surface over a set of relay URLs, with event deduplication and
// partial-failure-tolerant publish.
package relaymux

import (
	"context"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/singleflight"

	"github.com/nostrband/libaskexperts/internal/logger"
)

// Pool owns a cache of relay connections shared across every Subscribe and
// Publish call. Concurrent callers resolving the same not-yet-connected URL
// are collapsed onto a single dial via singleflight, rather than each
// racing to connect and one losing the dial.
type Pool struct {
	mu     sync.RWMutex
	conns  map[string]*nostr.Relay
	dial   singleflight.Group
	log    logger.Logger
	closed bool
}

// NewPool constructs an empty pool. Connections are established lazily on
// first use by Subscribe or Publish.
func NewPool(log logger.Logger) *Pool {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Pool{
		conns: make(map[string]*nostr.Relay),
		log:   log,
	}
}

func (p *Pool) connect(ctx context.Context, url string) (*nostr.Relay, error) {
	p.mu.RLock()
	if r, ok := p.conns[url]; ok {
		p.mu.RUnlock()
		return r, nil
	}
	p.mu.RUnlock()

	v, err, _ := p.dial.Do(url, func() (interface{}, error) {
		p.mu.RLock()
		if r, ok := p.conns[url]; ok {
			p.mu.RUnlock()
			return r, nil
		}
		p.mu.RUnlock()

		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", url, err)
		}
		p.mu.Lock()
		p.conns[url] = r
		p.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*nostr.Relay), nil
}

// Subscription is a handle over one or more per-relay subscriptions merged
// into a single deduplicated event stream. Close is idempotent.
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

// Close releases every underlying per-relay subscription. Safe to call more
// than once and from any goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
	})
}

// Subscribe opens filter-matching subscriptions on every relay in urls and
// merges their events into a single deduplicated stream: onEvent fires at
// most once per distinct event id, regardless of how many relays deliver
// it. onEOSE, when non-nil, fires once per relay that reports
// end-of-stored-events; no merged EOSE signal is produced. The Ask Listener
// passes nil and bounds backfill with the filter's since instead.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filter nostr.Filter, onEvent func(*nostr.Event), onEOSE func()) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel}

	var seenMu sync.Mutex
	seen := make(map[string]struct{})

	var wg sync.WaitGroup
	connected := 0
	for _, url := range urls {
		relay, err := p.connect(subCtx, url)
		if err != nil {
			p.log.Warn("relay connect failed", logger.String("relay", url), logger.Error(err))
			continue
		}
		relaySub, err := relay.Subscribe(subCtx, nostr.Filters{filter})
		if err != nil {
			p.log.Warn("relay subscribe failed", logger.String("relay", url), logger.Error(err))
			continue
		}
		connected++

		wg.Add(1)
		go func(url string, rs *nostr.Subscription) {
			defer wg.Done()
			defer rs.Unsub()
			for {
				select {
				case evt, ok := <-rs.Events:
					if !ok {
						return
					}
					seenMu.Lock()
					_, dup := seen[evt.ID]
					if !dup {
						seen[evt.ID] = struct{}{}
					}
					seenMu.Unlock()
					if !dup {
						onEvent(evt)
					}
				case <-rs.EndOfStoredEvents:
					if onEOSE != nil {
						onEOSE()
					}
				case <-subCtx.Done():
					return
				}
			}
		}(url, relaySub)
	}

	if connected == 0 {
		cancel()
		return nil, fmt.Errorf("relaymux: no relay accepted subscription out of %d", len(urls))
	}

	return sub, nil
}

// PublishResult reports per-relay publish outcomes for observability.
type PublishResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Accepted reports whether the publish succeeded per §4.3: at least one
// relay accepted the event.
func (r PublishResult) Accepted() bool {
	return len(r.Succeeded) > 0
}

// Publish sends evt to every relay in urls concurrently and aggregates the
// per-relay outcome. A publication is considered accepted if at least one
// relay accepts it; the rest are reported but do not fail the call.
func (p *Pool) Publish(ctx context.Context, urls []string, evt nostr.Event) PublishResult {
	type outcome struct {
		url string
		err error
	}
	results := make(chan outcome, len(urls))

	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			relay, err := p.connect(ctx, url)
			if err != nil {
				results <- outcome{url: url, err: err}
				return
			}
			if err := relay.Publish(ctx, evt); err != nil {
				results <- outcome{url: url, err: err}
				return
			}
			results <- outcome{url: url}
		}(url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	res := PublishResult{Failed: make(map[string]error)}
	for o := range results {
		if o.err != nil {
			res.Failed[o.url] = o.err
			p.log.Warn("publish failed", logger.String("relay", o.url), logger.Error(o.err))
			continue
		}
		res.Succeeded = append(res.Succeeded, o.url)
	}
	return res
}

// Connected reports whether the pool currently holds a live connection to
// url, for use by health checks; it never dials.
func (p *Pool) Connected(url string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.conns[url]
	return ok
}

// CloseAll releases connections to the listed relays. Relays not currently
// connected are ignored.
func (p *Pool) CloseAll(urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, url := range urls {
		if r, ok := p.conns[url]; ok {
			r.Close()
			delete(p.conns, url)
		}
	}
}

// Close releases every connection the pool has ever opened. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for url, r := range p.conns {
		r.Close()
		delete(p.conns, url)
	}
}
