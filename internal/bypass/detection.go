// Package bypass recognises error responses served by a bot-protection layer
// rather than by the origin, so a blocked side of a pair can be told apart
// from a genuine server error.
package bypass

import (
	"bytes"
	"net/http"
	"slices"
	"strings"
)

// Response is the part of a fetched response the detectors inspect. Body may
// be a prefix of the full body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// signature describes one provider's block page. A response matches when its
// status is listed and any of the server, header or body markers is present.
type signature struct {
	provider string
	statuses []int
	server   string
	headers  []string
	markers  []string
}

var signatures = []signature{
	{
		provider: "Cloudflare",
		statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		server:   "cloudflare",
		markers:  []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"},
	},
	{
		provider: "Akamai",
		statuses: []int{http.StatusForbidden},
		server:   "akamai",
	},
	{
		provider: "DataDome",
		statuses: []int{http.StatusForbidden},
		server:   "datadome",
		headers:  []string{"X-DataDome", "X-DataDome-Response"},
		markers:  []string{"geo.captcha-delivery.com", "datadome"},
	},
	{
		provider: "PerimeterX",
		statuses: []int{http.StatusForbidden},
		headers:  []string{"X-Px-Captcha"},
		markers:  []string{"client.perimeterx.net", "px-captcha", "_pxBlock"},
	},
}

// Detect returns the provider that served r, or "" if r looks like it came
// from the origin.
func Detect(r *Response) string {
	if r == nil {
		return ""
	}
	for _, s := range signatures {
		if s.match(r) {
			return s.provider
		}
	}
	// Akamai's generic block page carries no server hint.
	if r.StatusCode == http.StatusForbidden &&
		bytes.Contains(r.Body, []byte("Reference #")) && bytes.Contains(r.Body, []byte("Access Denied")) {
		return "Akamai"
	}
	return ""
}

func (s signature) match(r *Response) bool {
	if !slices.Contains(s.statuses, r.StatusCode) {
		return false
	}
	if s.server != "" && strings.Contains(strings.ToLower(r.Header.Get("Server")), s.server) {
		return true
	}
	for _, h := range s.headers {
		if r.Header.Get(h) != "" {
			return true
		}
	}
	for _, m := range s.markers {
		if bytes.Contains(r.Body, []byte(m)) {
			return true
		}
	}
	return false
}
