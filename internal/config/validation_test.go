package config

import (
	"errors"
	"testing"
)

func validConfig(t *testing.T) *ServerConfiguration {
	t.Helper()
	cfg, err := ResolveProfile(ProfileDefault, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	return cfg
}

func TestValidateEnforcesPortRange(t *testing.T) {
	cfg := validConfig(t)
	cfg.Port = 70000
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Port" {
		t.Fatalf("expected Port field error, got %v", err)
	}
}

func TestValidateProxyRules(t *testing.T) {
	testCases := []struct {
		name      string
		rule      ProxyRule
		shouldErr bool
	}{
		{"http ok", ProxyRule{Prefix: "/api", Target: "http://localhost:8080"}, false},
		{"wss ok", ProxyRule{Prefix: "/live", Target: "wss://example.test", WebSocket: true}, false},
		{"missing slash", ProxyRule{Prefix: "api", Target: "http://localhost:8080"}, true},
		{"duplicate", ProxyRule{Prefix: "/ask", Target: "http://localhost:8080"}, true},
		{"bad scheme", ProxyRule{Prefix: "/ftp", Target: "ftp://localhost"}, true},
		{"missing host", ProxyRule{Prefix: "/x", Target: "http://"}, true},
		{"with path", ProxyRule{Prefix: "/x", Target: "http://localhost:8080/base"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Proxy = append(cfg.Proxy, tc.rule)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for %+v", tc.rule)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for %+v: %v", tc.rule, err)
			}
		})
	}
}

func TestValidateRejectsUnknownPlugin(t *testing.T) {
	cfg := validConfig(t)
	cfg.Plugins = append(cfg.Plugins, "react")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unregistered plugin should be rejected")
	}
}

func TestValidateOutDir(t *testing.T) {
	for _, dir := range []string{".", "../out", "/tmp/dist", "src", "src/dist", "./src", "node_modules/.out"} {
		cfg := validConfig(t)
		cfg.OutDir = dir
		if err := cfg.Validate(); err == nil {
			t.Fatalf("OutDir %q should be rejected", dir)
		}
	}
}

func TestValidateAcceptsOutDirOutsideSources(t *testing.T) {
	for _, dir := range []string{"dist", "build/web", "srcout"} {
		cfg := validConfig(t)
		cfg.OutDir = dir
		if err := cfg.Validate(); err != nil {
			t.Fatalf("OutDir %q should be accepted: %v", dir, err)
		}
	}
}

func TestValidateDefineSymbols(t *testing.T) {
	cfg := validConfig(t)
	cfg.Defines = append(cfg.Defines, Define{Symbol: APIURLSymbol})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("duplicate define symbol should be rejected")
	}
}
