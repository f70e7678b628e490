// Package keywords loads search query pools from plain-text files.
package keywords

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFromFile reads one keyword per line, trimming whitespace and skipping
// blank lines. The returned slice preserves file order.
func LoadFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyword file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		kw := strings.TrimSpace(scanner.Text())
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading keyword file: %w", err)
	}
	return out, nil
}
