// Package appid holds the static identity of the crawlpace binary.
package appid

import "strings"

// Identity describes how the application names itself on disk and in the environment.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
}

var current = Identity{
	BinaryName:  "crawlpace",
	ConfigName:  "crawlpace",
	EnvPrefix:   "CRAWLPACE_",
	Description: "Adaptive, politeness-aware crawl pacing",
}

// Get returns the application identity.
func Get() Identity {
	return current
}

// EnvName builds the environment variable name for a dotted config key,
// e.g. "backoff.max_retries" becomes CRAWLPACE_BACKOFF_MAX_RETRIES.
func (i Identity) EnvName(key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return i.EnvPrefix + name
}
