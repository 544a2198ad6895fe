package probe

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestShouldExcludePath(t *testing.T) {
	patterns := []string{"vendor/", ".git/", "_test.go", ".pb.go"}

	tests := []struct {
		name    string
		relPath string
		isDir   bool
		want    bool
	}{
		{"vendor file", "vendor/foo.go", false, true},
		{"vendor dir", "vendor", true, true},
		{"nested vendor dir", "src/vendor", true, true},
		{"vendorized is kept", "vendorized/bar.go", false, false},
		{"git internals", "src/.git/config", false, true},
		{"test suffix", "pkg/foo_test.go", false, true},
		{"generated", "api/api.pb.go", false, true},
		{"plain source", "pkg/foo.go", false, false},
		{"plain dir", "pkg", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldExcludePath(tt.relPath, tt.isDir, patterns); got != tt.want {
				t.Errorf("ShouldExcludePath(%q, %v) = %v, want %v", tt.relPath, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestShouldExcludePath_NoPatterns(t *testing.T) {
	if ShouldExcludePath("vendor/foo.go", false, nil) {
		t.Error("expected nothing excluded without patterns")
	}
	if ShouldExcludePath("vendor/foo.go", false, []string{""}) {
		t.Error("empty pattern must not match everything")
	}
}

func TestCountLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_test.go")
	content := "package a\n\nimport \"testing\"\n\nfunc TestOne(t *testing.T) {}\n\n\nfunc TestTwo(t *testing.T) {}\nfunc helper() {}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	counts, err := countLines(path, regexp.MustCompile(`^func Test`))
	if err != nil {
		t.Fatalf("countLines failed: %v", err)
	}
	if counts.Lines != 5 {
		t.Errorf("expected 5 non-blank lines, got %d", counts.Lines)
	}
	if counts.Tests != 2 {
		t.Errorf("expected 2 tests, got %d", counts.Tests)
	}

	if _, err := countLines(filepath.Join(t.TempDir(), "missing.go"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
