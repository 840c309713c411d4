// Package proxy rotates fetches across a set of egress proxies and benches
// the ones that keep failing.
package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Defaults applied by NewPool for zero Config fields.
const (
	DefaultMaxFailures = 3
	DefaultCooldown    = time.Minute
)

// Config tunes health tracking.
type Config struct {
	// MaxFailures consecutive-ish failures bench a proxy. Each success
	// forgives one failure.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type endpoint struct {
	url          *url.URL
	failures     int
	benchedUntil time.Time
}

// Pool hands out proxies round-robin. It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	next      int
	config    Config
}

// NewPool returns an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{config: cfg}
}

// Load adds one proxy per line of r. Blank lines and # comments are ignored.
func (p *Pool) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	var raws []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(raws...)
}

// LoadFile is Load on the file at path.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()
	return p.Load(f)
}

// Add registers proxies. A value without a scheme is taken as http://.
func (p *Pool) Add(raws ...string) error {
	parsed := make([]*endpoint, 0, len(raws))
	for _, raw := range raws {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("parse proxy %q: missing host", raw)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	p.endpoints = append(p.endpoints, parsed...)
	p.mu.Unlock()
	return nil
}

// Len returns the number of registered proxies, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next proxy that is not benched, or nil if the pool is
// empty or every proxy is sitting out.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.config.Now()
	for range p.endpoints {
		e := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if !e.benchedUntil.IsZero() {
			if now.Before(e.benchedUntil) {
				continue
			}
			e.benchedUntil = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// Report records the result of a request sent through u. Unknown proxies
// are ignored.
func (p *Pool) Report(u *url.URL, ok bool) {
	if u == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return
	}
	if ok {
		if e.failures > 0 {
			e.failures--
		}
		return
	}
	e.failures++
	if e.failures >= p.config.MaxFailures {
		e.benchedUntil = p.config.Now().Add(p.config.Cooldown)
	}
}

func (p *Pool) find(u *url.URL) *endpoint {
	target := u.String()
	for _, e := range p.endpoints {
		if e.url.String() == target {
			return e
		}
	}
	return nil
}
