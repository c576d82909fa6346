package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPasswordDigest(t *testing.T) {
	t.Run("matches the SM3 reference vector", func(t *testing.T) {
		want := "66c7f0f462eeedd9d1f2d46bdc10e4e24167c4875cf2f7a2297da02b8f4ba8e0"
		if got := passwordDigest("abc"); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	})

	t.Run("digest output validates", func(t *testing.T) {
		if !validDigest(passwordDigest("hunter2")) {
			t.Fatal("expected digest to validate")
		}
	})
}

func TestValidDigest(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"08594e140bcc046e345325435218f67a85c38c63de6443b197b544d70ee62f26", true},
		{"08594e140bcc", false},
		{"", false},
		{"zz594e140bcc046e345325435218f67a85c38c63de6443b197b544d70ee62f26", false},
	}
	for _, tc := range cases {
		if got := validDigest(tc.in); got != tc.want {
			t.Fatalf("validDigest(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestReadPasswordFromPipe(t *testing.T) {
	t.Run("reads the first line of non-terminal input", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stdin")
		if err := os.WriteFile(path, []byte("s3cret\nignored\n"), 0600); err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()

		got, err := readPassword(f, os.Stderr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "s3cret" {
			t.Fatalf("expected %q, got %q", "s3cret", got)
		}
	})
}
