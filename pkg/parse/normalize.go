package parse

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var errRelativeWithoutBase = errors.New("relative link without base URL")

// NormalizeURL builds a comparison key for a site link: lowercase scheme and host,
// no default port, no query or fragment, and a trailing slash on non-root paths
// (the site serves /b7 and /b7/ as the same page). The input is not modified.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") || (normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if !strings.HasSuffix(normalized.Path, "/") {
		normalized.Path += "/"
	}
	normalized.RawPath = ""
	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.RawQuery = ""
	normalized.ForceQuery = false

	return normalized.String()
}

// ResolveLink resolves href against base. A nil base requires href to be absolute.
func ResolveLink(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	if base == nil {
		if !ref.IsAbs() {
			return nil, &url.Error{Op: "resolve", URL: href, Err: errRelativeWithoutBase}
		}
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}
