// Package fingerprint builds HTTP transports that present a chosen TLS
// ClientHello, so both sides of a comparison see the same client fingerprint
// a real browser would send.
package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard crypto/tls
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// Options tune the transport independent of the chosen profile.
type Options struct {
	// InsecureSkipVerify accepts self-signed certificates, which staging
	// environments frequently use.
	InsecureSkipVerify bool
	// Proxy selects an egress proxy per request. Nil dials directly.
	// Proxied HTTPS tunnels use crypto/tls, not the chosen ClientHello.
	Proxy func(*http.Request) (*url.URL, error)
}

// ParseProfile maps a flag or config value onto a Profile. An empty string
// selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileGo, nil
	}
	if _, err := helloID(p); err != nil {
		return "", err
	}
	return p, nil
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileGo:
		return utls.ClientHelloID{}, nil
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("unknown tls profile %q", p)
	}
}

// Transport returns an http.RoundTripper for profile p. ProfileGo yields a
// plain clone of http.DefaultTransport; every other profile performs the TLS
// handshake through utls.UClient. Plain http:// URLs never reach the TLS
// dialer, so the scheme of each request selects the wire protocol.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	id, err := helloID(p)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// The environment proxy is ignored: it could route one side of a pair
	// differently from the other.
	transport.Proxy = opts.Proxy

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for staging certs
		}
		return transport, nil
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in for staging certs
		}, id)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake with %s: %w", host, err)
		}

		return uConn, nil
	}

	return transport, nil
}
