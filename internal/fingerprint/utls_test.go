package fingerprint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	profiles := []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom}

	for _, p := range profiles {
		t.Run(string(p), func(t *testing.T) {
			// httptest.NewTLSServer uses a self-signed certificate.
			rt, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}

			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}
			if p != ProfileGo && tr.DialTLSContext == nil {
				t.Fatalf("expected uTLS dialer for profile %s", p)
			}

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
			if err != nil {
				t.Fatalf("failed to create request: %v", err)
			}

			resp, err := (&http.Client{Transport: tr}).Do(req)
			if err != nil {
				// Some randomized hellos negotiate h2 only, which the
				// http/1.1 test server cannot speak.
				if p == ProfileRandom {
					t.Skipf("randomized profile failed against test server: %v", err)
				}
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_PlainHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileChrome, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := (&http.Client{Transport: rt}).Get(ts.URL)
	if err != nil {
		t.Fatalf("plain http request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `unknown tls profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("")
	if err != nil || p != ProfileGo {
		t.Errorf("expected empty string to select go profile, got %q, %v", p, err)
	}

	p, err = ParseProfile(" Chrome ")
	if err != nil || p != ProfileChrome {
		t.Errorf("expected chrome, got %q, %v", p, err)
	}

	if _, err := ParseProfile("netscape"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
