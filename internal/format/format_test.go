package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{Name: "a.txt", Count: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"name":"a.txt","count":2}` {
		t.Fatalf("unexpected json %q", got)
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, sample{Name: "a.txt", Count: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "name: a.txt\ncount: 2\n" {
		t.Fatalf("unexpected yaml %q", got)
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"json", "YAML", " yml "} {
		if _, err := ForName(name); err != nil {
			t.Fatalf("for name %q: %v", name, err)
		}
	}
	if _, err := ForName("xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
