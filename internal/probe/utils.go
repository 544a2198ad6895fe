package probe

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

// ShouldExcludePath checks if a path matches any exclude patterns.
// Patterns can be:
//   - Directory prefixes: "vendor/" matches "vendor/foo.go"
//   - File suffixes: "_test.go" matches "foo_test.go"
//   - Anywhere in path: ".git/" matches "src/.git/config"
//
// Directories are matched with a trailing slash so "vendor/" also
// excludes the directory itself and the walk can skip it.
func ShouldExcludePath(relPath string, isDir bool, patterns []string) bool {
	if isDir && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// Match at path component boundaries so "vendor/" does not match "vendorized/bar"
		if strings.HasPrefix(relPath, pattern) ||
			strings.Contains(relPath, "/"+pattern) ||
			strings.HasSuffix(relPath, pattern) {
			return true
		}
	}
	return false
}

// fileCounts is the line tally of one source file.
type fileCounts struct {
	Lines int // non-blank lines
	Tests int // lines matching the test pattern
}

// countLines counts non-blank lines in a file using streaming to avoid
// memory exhaustion. When testPattern is non-nil, matching lines are
// counted as test declarations.
func countLines(path string, testPattern *regexp.Regexp) (fileCounts, error) {
	var c fileCounts

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		c.Lines++
		if testPattern != nil && testPattern.Match(line) {
			c.Tests++
		}
	}

	if err := scanner.Err(); err != nil {
		return fileCounts{}, err
	}
	return c, nil
}
