package main

import (
	"testing"
)

func TestExtractExpression(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"12+3", "12+3", true},
		{"12 4 3\n", "1243", true},
		{"  7-2  ", "7-2", true},
		{"--12+3--", "12+3", true},
		{"12+3 45-6", "12+345", true},
		{"", "", false},
		{"+-", "", false},
		{"8", "", false},
	}
	for _, tc := range cases {
		got, ok := extractExpression(tc.text)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("extractExpression(%q) = %q, %v; want %q, %v", tc.text, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCorrectExpression(t *testing.T) {
	table := defaultConfusions()
	cases := []struct {
		in   string
		want string
	}{
		{"1243", "12+3"},
		{"843", "8+3"},
		{"12443", "12+43"},
		{"12+3", "12+3"},
		{"17-9", "17-9"},
		{"5-43", "5-+3"},
		// Even length: the character after the midpoint is checked too.
		{"12+4", "12++"},
	}
	for _, tc := range cases {
		if got := correctExpression(tc.in, table); got != tc.want {
			t.Fatalf("correctExpression(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	t.Run("custom table", func(t *testing.T) {
		custom := []Confusion{{Glyph: "7", Replacement: "-", Positions: []ConfusionPosition{{Offset: 0}}}}
		if got := correctExpression("573", custom); got != "5-3" {
			t.Fatalf("expected 5-3, got %q", got)
		}
		if got := correctExpression("1243", custom); got != "1243" {
			t.Fatalf("custom table should not apply the default rule, got %q", got)
		}
	})

	t.Run("empty table is a no-op", func(t *testing.T) {
		if got := correctExpression("1243", nil); got != "1243" {
			t.Fatalf("expected unchanged expression, got %q", got)
		}
	})
}

func TestEvaluateExpression(t *testing.T) {
	t.Run("evaluates addition and subtraction", func(t *testing.T) {
		cases := map[string]int{
			"12+3": 15,
			"20-7": 13,
			"3-5":  -2,
			"5-+3": 2,
		}
		for expr, want := range cases {
			got, err := evaluateExpression(expr)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", expr, err)
			}
			if got != want {
				t.Fatalf("%s: expected %d, got %d", expr, want, got)
			}
		}
	})

	t.Run("rejects malformed expressions", func(t *testing.T) {
		for _, expr := range []string{"", "12+", "12++", "+", "1;2", "alert(1)"} {
			if _, err := evaluateExpression(expr); err == nil {
				t.Fatalf("%q: expected error", expr)
			}
		}
	})
}

func TestConfusionValidate(t *testing.T) {
	if err := defaultConfusions()[0].validate(); err != nil {
		t.Fatalf("default confusion should validate: %v", err)
	}
	bad := []Confusion{
		{Glyph: "44", Replacement: "+", Positions: []ConfusionPosition{{}}},
		{Glyph: "4", Replacement: ";", Positions: []ConfusionPosition{{}}},
		{Glyph: "4", Replacement: "+"},
	}
	for _, c := range bad {
		if err := c.validate(); err == nil {
			t.Fatalf("expected %+v to be rejected", c)
		}
	}
}
