package discovery

import (
	"net/url"
	"strings"
	"unicode"
)

// SearchURL builds the listings-site search page for a city, e.g.
// https://www.apartments.com/omaha-ne/.
func SearchURL(domain, city, state string) string {
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	slug := slugify(city)
	if st := strings.ToLower(strings.TrimSpace(state)); st != "" {
		slug += "-" + st
	}
	return "https://www." + domain + "/" + slug + "/"
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ParseCityState extracts the city and two-letter state from an address of
// the form "street, city, ST zip". Empty strings are returned when no state
// segment is found.
func ParseCityState(addr string) (city, state string) {
	var parts []string
	for _, p := range strings.Split(addr, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", ""
	}

	// Scan from the end so a trailing country segment is skipped.
	for i := len(parts) - 1; i > 0; i-- {
		if st := parseState(parts[i]); st != "" {
			return parts[i-1], st
		}
	}
	return "", ""
}

// parseState accepts "NE" or "NE 68102".
func parseState(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return ""
	}
	st := fields[0]
	if len(st) != 2 || st[0] < 'A' || st[0] > 'Z' || st[1] < 'A' || st[1] > 'Z' {
		return ""
	}
	if len(fields) == 2 && !isZipCode(fields[1]) {
		return ""
	}
	return st
}

func isZipCode(s string) bool {
	if len(s) < 5 || len(s) > 10 {
		return false
	}
	for _, c := range s {
		if c != '-' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// onDomain reports whether host is domain or one of its subdomains.
func onDomain(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// resolveListingURL makes raw absolute against the listing domain and
// reports whether it belongs to that domain.
func resolveListingURL(raw, domain string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		base := &url.URL{Scheme: "https", Host: "www." + strings.TrimPrefix(domain, "www."), Path: "/"}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !onDomain(u.Hostname(), domain) {
		return "", false
	}
	return u.String(), true
}
