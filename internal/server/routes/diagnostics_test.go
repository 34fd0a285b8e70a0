package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/qr-lecture/devhub/internal/config"
	"github.com/qr-lecture/devhub/internal/plugin"
	"github.com/qr-lecture/devhub/internal/server"
)

func TestEncodePluginsMarksEnabled(t *testing.T) {
	plugins := []plugin.Plugin{
		{Key: "vue", Extensions: []string{".vue"}},
		{Key: "svelte", Extensions: []string{".svelte"}, Entry: "/src/main.js"},
	}

	encoded := encodePlugins(plugins, []string{"Svelte"})
	if len(encoded) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(encoded))
	}
	if encoded[0].Key != "svelte" || !encoded[0].Enabled {
		t.Fatalf("expected svelte first and enabled, got %+v", encoded[0])
	}
	if encoded[1].Key != "vue" || encoded[1].Enabled {
		t.Fatalf("expected vue second and disabled, got %+v", encoded[1])
	}
}

func TestConfigRouteReportsResolvedConfiguration(t *testing.T) {
	cfg, err := config.ResolveProfile(config.ProfileDefault, config.Env{"VITE_API_URL": "https://staging.example"})
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}
	registry, err := server.NewProxyRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	app := fiber.New()
	RegisterDiagnosticsRoutes(app, cfg, registry)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/config", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)

	var payload configPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v (%s)", err, string(body))
	}
	if payload.Port != 5173 || payload.Host != "0.0.0.0" {
		t.Fatalf("unexpected bind %s:%d", payload.Host, payload.Port)
	}
	if len(payload.Proxy) != 3 || payload.Proxy[2].Prefix != "/ws" || !payload.Proxy[2].WebSocket {
		t.Fatalf("unexpected proxy payload: %+v", payload.Proxy)
	}
	if payload.Proxy[2].Upstream != "http://localhost:8080" {
		t.Fatalf("expected ws target dialed as http, got %s", payload.Proxy[2].Upstream)
	}
	if len(payload.Defines) != 1 || payload.Defines[0].Value != "https://staging.example" || payload.Defines[0].Source != "env" {
		t.Fatalf("unexpected defines payload: %+v", payload.Defines)
	}
}
