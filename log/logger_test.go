package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	specs := map[string]Level{
		"debug":   Debug,
		"INFO":    Info,
		"notice":  Notice,
		"warn":    Warning,
		"Warning": Warning,
		"error":   Error,
	}

	for name, exp := range specs {
		lvl, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("unexpected error parsing %q: %v", name, err)
		}
		if lvl != exp {
			t.Fatalf("expected %q to parse as %d; got %d", name, exp, lvl)
		}
	}

	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer func() {
		SetSink(os.Stderr)
		SetLevel(Notice)
	}()

	logger := New("test")

	SetLevel(Warning)
	logger.Infof("suppressed %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected info message to be filtered at warning level; got %q", buf.String())
	}

	SetLevel(Debug)
	logger.Debugf("visible %d", 2)
	if !strings.Contains(buf.String(), "visible 2") {
		t.Fatalf("expected debug message in output; got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[test]") {
		t.Fatalf("expected module name in output; got %q", buf.String())
	}
}
