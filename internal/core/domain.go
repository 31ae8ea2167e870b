package core

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// KeyMode selects how URLs are partitioned into pacing domains.
type KeyMode string

const (
	// KeyHost partitions by lowercase hostname.
	KeyHost KeyMode = "host"
	// KeyRegistrable partitions by eTLD+1 so sibling subdomains share a budget.
	KeyRegistrable KeyMode = "registrable"
)

// ParseKeyMode validates a configured key mode.
func ParseKeyMode(value string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", KeyHost:
		return KeyHost, nil
	case KeyRegistrable:
		return KeyRegistrable, nil
	default:
		return "", fmt.Errorf("unsupported domain key mode: %s", value)
	}
}

// DomainKey derives the pacing partition key for a URL.
func DomainKey(rawURL string, mode KeyMode) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("url has no host: %q", rawURL)
	}
	return HostKey(host, mode), nil
}

// HostKey normalizes a bare host name according to mode.
func HostKey(host string, mode KeyMode) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if mode != KeyRegistrable || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// Origin returns scheme://host[:port] for a URL, the robots.txt partition.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + strings.ToLower(u.Host)
}
