package scenario

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURLEnv names the environment variable holding the target base URL.
	BaseURLEnv = "BASE_URL"

	// DefaultBaseURL is used when no base URL is supplied.
	DefaultBaseURL = "http://localhost:8080"

	// CreatePath is the pull request creation route of the target service.
	CreatePath = "/pullRequest/create"
)

// ParseBaseURL parses and checks a base URL. Only absolute http(s) URLs
// without query or fragment are accepted, since the endpoint path is appended.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("base URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("invalid base URL %q: query and fragment are not allowed", raw)
	}
	return u, nil
}

// EndpointURL joins base and path with exactly one slash between them,
// whatever trailing or leading slashes either side carries. Escaped
// characters in the base path, such as %2F, are kept as they are.
func EndpointURL(base *url.URL, path string) string {
	return base.JoinPath(path).String()
}
