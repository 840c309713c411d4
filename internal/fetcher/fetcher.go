// Package fetcher retrieves a single resource for one side of a comparison and
// classifies the outcome. It never retries and never returns a Go error: every
// failure mode is folded into the Outcome.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/FranksOps/synapse/internal/bypass"
	"github.com/FranksOps/synapse/internal/fingerprint"
	"github.com/FranksOps/synapse/pkg/httpclient"
	"github.com/FranksOps/synapse/pkg/proxy"
	"github.com/FranksOps/synapse/pkg/useragent"
)

// DefaultTimeout applies when Options.Timeout is not positive.
const DefaultTimeout = 30 * time.Second

// TimeoutMessage is the Outcome.Error of a fetch whose header-phase timer fired.
const TimeoutMessage = "Timeout"

// blockSniffBytes is how much of an error body is read for block detection.
const blockSniffBytes = 64 << 10

// blockSniffTimeout caps the error-body read; the fetch timeout caps it further.
const blockSniffTimeout = time.Second

type proxyKey struct{}

// Config configures the shared transport behind all fetches of a run.
type Config struct {
	MaxRedirects       int
	UseCookieJar       bool
	UAPool             *useragent.Pool
	Fingerprint        fingerprint.Profile
	InsecureSkipVerify bool
	// MaxBodyBytes caps how much of a body is kept; 0 means unlimited. A
	// body larger than the cap fails the fetch rather than being truncated.
	MaxBodyBytes int64
	// Proxies, when set, routes each fetch through the next healthy proxy.
	Proxies *proxy.Pool
}

// Options are the per-fetch parameters.
type Options struct {
	// Timeout bounds dispatch until response headers arrive.
	Timeout time.Duration
	// ContentTypePrefix, when set, must prefix the declared Content-Type
	// (e.g. "image/") or the fetch fails even on a 2xx response.
	ContentTypePrefix string
}

// Outcome is the classified result of one fetch attempt. Body is set iff OK;
// Error is set iff !OK. StatusCode is 0 when no response was received.
type Outcome struct {
	OK          bool
	StatusCode  int
	Body        []byte
	ContentType string
	// BlockedBy names the bot-protection provider that served a non-2xx
	// response, if one was recognised.
	BlockedBy   string
	Error       string
	Duration    time.Duration
}

// Fetcher performs single-attempt GETs. It is safe for concurrent use.
type Fetcher struct {
	config Config
	client *httpclient.Client
}

// New builds a Fetcher holding one client, so connections are pooled across
// every fetch of a run.
func New(cfg Config) (*Fetcher, error) {
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool()
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}

	opts := fingerprint.Options{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.Proxies != nil {
		opts.Proxy = proxyFromContext
	}
	transport, err := fingerprint.Transport(cfg.Fingerprint, opts)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	// No client-level timeout: the header phase is bounded per fetch and the
	// body read is bounded by the caller's context.
	client, err := httpclient.New(httpclient.Config{
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch issues one GET for rawURL. The timeout timer starts at dispatch and is
// disarmed once headers arrive; if it fires first the request is abandoned
// and the outcome is a Timeout with status 0.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) *Outcome {
	start := time.Now()
	out := &Outcome{}
	defer func() { out.Duration = time.Since(start) }()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var via *url.URL
	if f.config.Proxies != nil {
		via = f.config.Proxies.Next()
		if via != nil {
			ctx = context.WithValue(ctx, proxyKey{}, via)
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		timer.Stop()
		out.Error = fmt.Sprintf("invalid request: %v", err)
		return out
	}
	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", acceptFor(opts.ContentTypePrefix))

	resp, err := f.client.Do(reqCtx, req)
	disarmed := timer.Stop()
	if via != nil {
		f.config.Proxies.Report(via, err == nil)
	}
	if err != nil {
		if timedOut.Load() {
			out.Error = TimeoutMessage
		} else {
			out.Error = transportMessage(err)
		}
		return out
	}
	defer resp.Body.Close()

	if !disarmed {
		// The timer fired while headers were being handed back; the request
		// context is already cancelled so the body is unusable.
		out.Error = TimeoutMessage
		return out
	}

	out.StatusCode = resp.StatusCode
	out.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		// A stalled error body is cut short; whatever arrived is still sniffed.
		sniffTimer := time.AfterFunc(min(timeout, blockSniffTimeout), cancel)
		sniff, _ := io.ReadAll(io.LimitReader(resp.Body, blockSniffBytes))
		sniffTimer.Stop()
		out.BlockedBy = bypass.Detect(&bypass.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: sniff})
		return out
	}

	if opts.ContentTypePrefix != "" && !strings.HasPrefix(out.ContentType, opts.ContentTypePrefix) {
		out.Error = fmt.Sprintf("Invalid content-type: %s (expected %s*)", out.ContentType, opts.ContentTypePrefix)
		return out
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.OK = true
	out.Body = body
	return out
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	u, _ := req.Context().Value(proxyKey{}).(*url.URL)
	return u, nil
}

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.config.MaxBodyBytes <= 0 {
		return io.ReadAll(r)
	}

	body, err := io.ReadAll(io.LimitReader(r, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", f.config.MaxBodyBytes)
	}
	return body, nil
}

// transportMessage strips the "Get <url>:" framing net/http adds so reports
// carry the underlying cause (connection refused, no such host, ...).
func transportMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}

func acceptFor(prefix string) string {
	if prefix == "image/" {
		return "image/avif,image/webp,image/png,image/*;q=0.8,*/*;q=0.5"
	}
	return "*/*"
}
