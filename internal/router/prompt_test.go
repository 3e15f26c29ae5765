package router

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPromptSourceDefault(t *testing.T) {
	ps := NewPromptSource()
	defer ps.Close()
	if !strings.Contains(ps.Prompt(), "{{workers}}") {
		t.Error("default prompt missing the worker catalog slot")
	}
}

func TestPromptSourceFromFileReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.prompt")
	if err := os.WriteFile(path, []byte("first version {{date}} {{workers}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	ps, err := NewPromptSourceFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ps.Close()

	if !strings.Contains(ps.Prompt(), "first version") {
		t.Fatalf("initial prompt = %q", ps.Prompt())
	}

	if err := os.WriteFile(path, []byte("second version {{date}} {{workers}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if strings.Contains(ps.Prompt(), "second version") {
			return
		}
		select {
		case <-deadline:
			t.Fatal("prompt did not reload after file change")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestPromptSourceMissingFile(t *testing.T) {
	if _, err := NewPromptSourceFromFile(filepath.Join(t.TempDir(), "absent.prompt")); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}
