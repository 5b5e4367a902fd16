package relay

import "strings"

// NormalizeURL canonicalizes a relay URL for storage and comparison: a
// missing scheme becomes wss://, the trailing slash is stripped. Returns ""
// for input that cannot name a relay.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return ""
	}
	if !strings.Contains(url, "://") {
		url = "wss://" + url
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return ""
	}
	host := url[strings.Index(url, "://")+3:]
	if strings.Trim(host, "/") == "" {
		return ""
	}
	return strings.TrimSuffix(url, "/")
}
