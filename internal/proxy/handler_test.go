package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/config"
	"github.com/qr-lecture/devhub/internal/server"
)

type upstreamRecord struct {
	uri           string
	host          string
	method        string
	body          string
	forwardedFor  string
	forwardedHost string
}

func TestHandlerForwardsPathQueryAndBody(t *testing.T) {
	records := make(chan upstreamRecord, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		records <- upstreamRecord{
			uri:           r.URL.RequestURI(),
			host:          r.Host,
			method:        r.Method,
			body:          string(body),
			forwardedFor:  r.Header.Get("X-Forwarded-For"),
			forwardedHost: r.Header.Get("X-Forwarded-Host"),
		}
		http.SetCookie(w, &http.Cookie{Name: "a", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "b", Value: "2"})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"session":"s-1"}`))
	}))
	defer upstream.Close()

	app := newHandlerApp(t, config.ProxyRule{Prefix: "/create-session", Target: upstream.URL})

	req := httptest.NewRequest(http.MethodPost, "http://localhost:5173/create-session/new?course=42&x=a%20b", strings.NewReader(`{"lecture":1}`))
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"session":"s-1"}` {
		t.Fatalf("unexpected body %s", string(body))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cookies := resp.Header.Values("Set-Cookie"); len(cookies) != 2 {
		t.Fatalf("expected both cookies, got %v", cookies)
	}

	record := <-records
	if record.uri != "/create-session/new?course=42&x=a%20b" {
		t.Fatalf("path/query must be forwarded unchanged, got %s", record.uri)
	}
	if record.method != http.MethodPost || record.body != `{"lecture":1}` {
		t.Fatalf("unexpected method/body %s %s", record.method, record.body)
	}
	if record.host != "localhost:5173" {
		t.Fatalf("original host should be preserved, got %s", record.host)
	}
	if record.forwardedHost != "localhost:5173" {
		t.Fatalf("unexpected X-Forwarded-Host %s", record.forwardedHost)
	}
	if !strings.HasPrefix(record.forwardedFor, "10.0.0.1") {
		t.Fatalf("expected X-Forwarded-For to extend the prior chain, got %s", record.forwardedFor)
	}
}

func TestHandlerForwardsRawPathUnchanged(t *testing.T) {
	uris := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uris <- r.RequestURI
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	app := newHandlerApp(t, config.ProxyRule{Prefix: "/ask", Target: upstream.URL})

	for _, uri := range []string{
		"/ask/a%2Fb?q=1",
		"/ask//double",
		"/ask/x/../y",
		"/ask/%E4%BD%A0%20ok?x=a%2Bb",
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://localhost:5173"+uri, nil))
		if err != nil {
			t.Fatalf("app.Test(%s) failed: %v", uri, err)
		}
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", uri, resp.StatusCode)
		}
		if got := <-uris; got != uri {
			t.Fatalf("upstream should receive %s unchanged, got %s", uri, got)
		}
	}
}

func TestHandlerChangeOriginRewritesHost(t *testing.T) {
	hosts := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts <- r.Host
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	app := newHandlerApp(t, config.ProxyRule{Prefix: "/ask", Target: upstream.URL, ChangeOrigin: true})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://localhost:5173/ask", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if host := <-hosts; host != strings.TrimPrefix(upstream.URL, "http://") {
		t.Fatalf("expected upstream host, got %s", host)
	}
}

func TestHandlerDoesNotFollowRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer upstream.Close()

	app := newHandlerApp(t, config.ProxyRule{Prefix: "/ask", Target: upstream.URL})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://localhost:5173/ask", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to reach the browser, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestHandlerUpstreamFailureReturns502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := upstream.URL
	upstream.Close()

	app := newHandlerApp(t, config.ProxyRule{Prefix: "/ask", Target: target})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://localhost:5173/ask", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "upstream_failed") {
		t.Fatalf("expected upstream_failed, got %s", string(body))
	}
}

func newHandlerApp(t *testing.T, rule config.ProxyRule) *fiber.App {
	t.Helper()
	cfg := &config.ServerConfiguration{
		Global: config.GlobalConfig{UpstreamTimeout: config.Duration(5 * time.Second)},
		Proxy:  []config.ProxyRule{rule},
	}
	registry, err := server.NewProxyRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewHandler(server.NewUpstreamClient(cfg), logger)
	app := fiber.New()
	app.All("/*", func(c fiber.Ctx) error {
		route, ok := registry.Match(string(c.Request().URI().Path()))
		if !ok {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return handler.Handle(c, route)
	})
	return app
}
