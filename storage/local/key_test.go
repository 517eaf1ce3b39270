package local

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "job-1", "job-1"},
		{"slash", "a/b", "a_b"},
		{"backslash", `a\b`, "a_b"},
		{"colon", "a:b", "a_b"},
		{"wildcards", "a*b?c", "a_b_c"},
		{"quotes and brackets", `a"b<c>d|e`, "a_b_c_d_e"},
		{"empty", "", "_"},
		{"dot", ".", "_"},
		{"dotdot", "..", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeName(tt.input); got != tt.expected {
				t.Errorf("sanitizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	hash := strings.Repeat("ab", 32)

	t.Run("dedup names by content hash", func(t *testing.T) {
		fs := &FileStore{config: FileStoreConfig{BaseDir: t.TempDir(), EnableDeduplication: true}}

		key := fs.generateKey("job-1", hash)
		if key != "jobs/job-1/"+hash+".wav" {
			t.Errorf("unexpected key %q", key)
		}
	})

	t.Run("without dedup names stay unique", func(t *testing.T) {
		fs := &FileStore{config: FileStoreConfig{BaseDir: t.TempDir()}}

		key := fs.generateKey("job-1", hash)
		name := strings.TrimSuffix(strings.TrimPrefix(key, "jobs/job-1/"), ".wav")
		if _, err := uuid.Parse(name); err != nil {
			t.Errorf("expected a UUID name, got %q: %v", name, err)
		}

		if other := fs.generateKey("job-1", hash); other == key {
			t.Errorf("two keys for the same content should differ without dedup, both %q", key)
		}
	})
}

func TestIndexKeyScopesJob(t *testing.T) {
	hash := strings.Repeat("cd", 32)

	if indexKey("job-a", hash) == indexKey("job-b", hash) {
		t.Error("identical content in different jobs must index separately")
	}
	if indexKey("job-a", hash) != indexKey("job-a", hash) {
		t.Error("index keys must be stable")
	}
}
