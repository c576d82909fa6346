package main

import (
	"strings"
	"testing"
)

func headerValue(headers [][2]string, name string) string {
	for _, h := range headers {
		if h[0] == name {
			return h[1]
		}
	}
	return ""
}

func TestGetProfile(t *testing.T) {
	t.Run("chrome profile advertises chrome", func(t *testing.T) {
		p := getProfile("chrome")
		if p.Name != "chrome" {
			t.Fatalf("expected name 'chrome', got %q", p.Name)
		}
		ua := headerValue(p.Headers, "User-Agent")
		if !strings.Contains(ua, "Chrome/") {
			t.Fatalf("expected Chrome user agent, got %q", ua)
		}
		if headerValue(p.Navigate, "Sec-Fetch-Mode") != "navigate" {
			t.Fatal("expected navigate headers on chrome profile")
		}
	})

	t.Run("firefox profile exists", func(t *testing.T) {
		p := getProfile("firefox")
		if p.Name != "firefox" {
			t.Fatalf("expected name 'firefox', got %q", p.Name)
		}
		if !strings.Contains(headerValue(p.Headers, "User-Agent"), "Firefox/") {
			t.Fatal("expected Firefox user agent")
		}
	})

	t.Run("unknown profile falls back to chrome", func(t *testing.T) {
		p := getProfile("unknown")
		if p.Name != "chrome" {
			t.Fatalf("expected fallback to 'chrome', got %q", p.Name)
		}
	})
}
