package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Doist/linkpreview"
)

const page = `<html><head>
<meta property="og:title" content="Hello">
<meta property="og:image" content="https://cdn.example.com/cover.png">
</head><body></body></html>`

func TestFileCmd(t *testing.T) {
	name := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(name, []byte(page), 0644); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		name  string
		args  []string
		stdin string
	}{
		{"file", []string{"file", name}, ""},
		{"stdin", []string{"file", "-"}, page},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetIn(strings.NewReader(tc.stdin))
			cmd.SetArgs(append(tc.args, "--no-providers", "--url", "https://example.com/post"))
			if err := cmd.Execute(); err != nil {
				t.Fatal(err)
			}
			var d linkpreview.Description
			if err := json.Unmarshal(out.Bytes(), &d); err != nil {
				t.Fatalf("output isn't JSON: %v\n%s", err, out.String())
			}
			if got := d.Title.First(); got != "Hello" {
				t.Errorf("title: got %q, want %q", got, "Hello")
			}
			if got := d.URL.First(); got != "https://example.com/post" {
				t.Errorf("url: got %q, want %q", got, "https://example.com/post")
			}
			if len(d.Image) != 1 || d.Image[0].Get("url") != "https://cdn.example.com/cover.png" {
				t.Errorf("unexpected image: %+v", d.Image)
			}
		})
	}
}

func TestFileCmd_cache(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "page.html")
	if err := os.WriteFile(name, []byte(page), 0644); err != nil {
		t.Fatal(err)
	}
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"file", name, "--no-providers", "--url", "https://example.com/post",
		"--cache", filepath.Join(dir, "cache.db")})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cache.db")); err != nil {
		t.Fatalf("cache database not created: %v", err)
	}
}

func TestArgs(t *testing.T) {
	for _, args := range [][]string{
		{"url"},
		{"file", "page.html"}, // no --url
		{"file"},
	} {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Errorf("%q: expected error", args)
		}
	}
}
