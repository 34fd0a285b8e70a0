// Package server hosts the development HTTP service: the Fiber application
// that resolves proxy rules, history fallback and static sources, plus the
// net/http front handler that takes over WebSocket upgrades for rules that
// allow them. Dependencies (registry, proxy handler, site) are injected so the
// router can be exercised with fakes.
package server
