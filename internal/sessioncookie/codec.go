// Package sessioncookie builds and inspects the session cookie exchanged by the session bridge.
//
// The Set-Cookie value is assembled by hand rather than through net/http.Cookie because the
// cookie contract requires a leading-dot Domain attribute, which net/http strips on output.
package sessioncookie

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Fixed attribute set carried by every session cookie.
const fixedAttributes = "; Path=/; HttpOnly; Secure; SameSite=Strict"

// Codec encodes session cookies for one name and domain.
type Codec struct {
	Name   string
	Domain string
}

// New returns a Codec with a normalized domain.
func New(name, domain string) Codec {
	return Codec{Name: name, Domain: NormalizeDomain(domain)}
}

// Session returns the Set-Cookie value carrying a session credential.
func (c Codec) Session(value string, maxAgeSeconds int) string {
	return Encode(c.Name, value, c.Domain, maxAgeSeconds)
}

// Cleared returns the canonical delete form: empty value and Max-Age=0.
func (c Codec) Cleared() string {
	return Encode(c.Name, "", c.Domain, 0)
}

// Present reports whether the raw Cookie header carries this codec's cookie key.
func (c Codec) Present(cookieHeader string) bool {
	return HasSessionCookie(cookieHeader, c.Name)
}

// Encode produces a single Set-Cookie value with the fixed attribute set
// {Path=/, HttpOnly, Secure, SameSite=Strict} plus Domain and Max-Age.
// Max-Age is always emitted; 0 asks the browser to delete the cookie immediately.
// Bytes that are not valid in a cookie value are dropped.
func Encode(name, value, domain string, maxAgeSeconds int) string {
	if maxAgeSeconds < 0 {
		maxAgeSeconds = 0
	}

	var b strings.Builder
	b.Grow(len(name) + len(value) + len(domain) + 96)
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(sanitizeValue(value))
	if domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(domain)
	}
	b.WriteString("; Max-Age=")
	b.WriteString(strconv.Itoa(maxAgeSeconds))
	b.WriteString(fixedAttributes)
	return b.String()
}

// HasSessionCookie reports whether cookieHeader contains the substring "<name>=".
//
// This is an advisory presence check only. It does not validate the value and must
// never be used as an authorization decision; anything that grants access has to
// re-verify the session credential with the identity provider.
func HasSessionCookie(cookieHeader, name string) bool {
	if cookieHeader == "" || name == "" {
		return false
	}
	return strings.Contains(cookieHeader, name+"=")
}

// NormalizeDomain lowercases d, drops any port and ensures a single leading dot.
// Empty input stays empty (host-only cookie).
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimLeft(d, ".")
	if d == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	return "." + d
}

// ParentDomain derives the wildcard cookie domain (".example.com") for host using the
// public suffix list, so that the cookie is shared with sibling subdomains.
func ParentDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return "", errors.New("empty host")
	}
	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("cannot derive a parent domain for IP address %q", host)
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("derive parent domain for %q: %w", host, err)
	}
	return "." + etld1, nil
}

// sanitizeValue keeps only bytes permitted by RFC 6265 cookie-octet.
func sanitizeValue(v string) string {
	ok := true
	for i := 0; i < len(v); i++ {
		if !validValueByte(v[i]) {
			ok = false
			break
		}
	}
	if ok {
		return v
	}
	buf := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if validValueByte(v[i]) {
			buf = append(buf, v[i])
		}
	}
	return string(buf)
}

func validValueByte(c byte) bool {
	return 0x20 < c && c < 0x7f && c != '"' && c != ';' && c != '\\' && c != ','
}
