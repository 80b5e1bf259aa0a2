package keypool

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseKeyFileName(t *testing.T) {
	tests := []struct {
		name         string
		wantProvider string
		wantTier     string
		wantOK       bool
	}{
		{"groq_free.env", "groq", "free", true},
		{"groq_paid.env", "groq", "paid", true},
		{"google_ai_studio_free.env", "google_ai_studio", "free", true},
		{"groq.env", "", "", false},
		{"groq_free.txt", "", "", false},
		{"groq_trial.env", "", "", false},
		{"_free.env", "", "", false},
	}
	for _, tt := range tests {
		provider, tier, ok := parseKeyFileName(tt.name)
		if ok != tt.wantOK || provider != tt.wantProvider || tier != tt.wantTier {
			t.Errorf("parseKeyFileName(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.name, provider, tier, ok, tt.wantProvider, tt.wantTier, tt.wantOK)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("groq_free.env", "key-a\n\n# commented out\nkey-b\n")
	write("groq_paid.env", "key-paid\n")
	write("cerebras_free.env", "cb-1\n")
	write("README.md", "not a key file\n")

	var registered []string
	m := NewManager(Options{
		AcquireTimeout: time.Second,
		OnKeyLoaded:    func(k string) { registered = append(registered, k) },
	})
	if err := m.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	if total := m.TotalKeys("groq"); total != 3 {
		t.Fatalf("groq total = %d, want 3", total)
	}
	if total := m.TotalKeys("cerebras"); total != 1 {
		t.Fatalf("cerebras total = %d, want 1", total)
	}
	if len(registered) != 4 {
		t.Fatalf("redactor hook saw %d keys, want 4", len(registered))
	}
}

func TestLoadDirMissing(t *testing.T) {
	m := NewManager(Options{AcquireTimeout: time.Second})
	if err := m.LoadDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
