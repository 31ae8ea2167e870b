package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// resolveURLs merges positional URLs with an optional URL file ("-" reads
// stdin). Blank lines and # comments are skipped.
func resolveURLs(positional []string, urlsFile string) ([]string, error) {
	urls := make([]string, 0, len(positional))
	for _, raw := range positional {
		target := strings.TrimSpace(raw)
		if target == "" {
			continue
		}
		if err := validateURL(target); err != nil {
			return nil, err
		}
		urls = append(urls, target)
	}

	if trimmed := strings.TrimSpace(urlsFile); trimmed != "" {
		fromFile, err := readURLsFile(trimmed)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one URL is required")
	}
	return urls, nil
}

func readURLsFile(path string) ([]string, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}
	return readURLs(reader)
}

func readURLs(reader io.Reader) ([]string, error) {
	urls := make([]string, 0)
	scanner := bufio.NewScanner(reader)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("invalid URL on line %d: %w", line, err)
		}
		urls = append(urls, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}
