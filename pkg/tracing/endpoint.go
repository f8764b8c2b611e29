package tracing

import "strings"

// TracesPath is the OTLP/HTTP trace submission path
const TracesPath = "/v1/traces"

// NormalizeEndpoint turns a collector base URL into its trace submission URL.
// Trailing slashes are dropped and TracesPath is appended unless the URL
// already ends with it, so applying it twice changes nothing.
func NormalizeEndpoint(endpoint string) string {
	u := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if u == "" || strings.HasSuffix(u, TracesPath) {
		return u
	}
	return u + TracesPath
}
