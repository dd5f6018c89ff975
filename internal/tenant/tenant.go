// Package tenant maps an inbound Host header onto a tenant namespace and
// decides how the request path is rewritten for that namespace.
//
// Classification is pure and never fails: anything outside the configured
// set of hostnames and subdomain labels collapses to the default tenant, and
// a missing host yields Unroutable.
package tenant

import (
	"net"
	"strings"
)

// Mode selects the classification rules.
type Mode int

const (
	// Prod matches hosts against the configured production hostnames.
	Prod Mode = iota
	// Dev matches "<label>.localhost[:port]".
	Dev
)

// Tenant is a recognized subdomain label, Default, or Unroutable.
type Tenant string

const (
	// Default is the main site.
	Default Tenant = ""
	// Unroutable marks a request without a Host header.
	Unroutable Tenant = "?"
)

// IsDefault reports whether t is the default tenant.
func (t Tenant) IsDefault() bool { return t == Default }

// Recognized reports whether t names a configured subdomain.
func (t Tenant) Recognized() bool { return t != Default && t != Unroutable }

// Classify derives the tenant for host. It is equivalent to
// NewClassifier(mode, hostnames, subdomains).Classify(host).
func Classify(host string, mode Mode, hostnames, subdomains []string) Tenant {
	return NewClassifier(mode, hostnames, subdomains).Classify(host)
}

// Classifier holds the configured hostnames and subdomain labels.
// It is immutable and safe for concurrent use.
type Classifier struct {
	mode       Mode
	hostnames  []string
	subdomains map[string]struct{}
}

// NewClassifier builds a Classifier. Hostnames are tried in order and the
// first suffix match wins. Labels are compared case-insensitively.
func NewClassifier(mode Mode, hostnames, subdomains []string) *Classifier {
	c := &Classifier{
		mode:       mode,
		subdomains: make(map[string]struct{}, len(subdomains)),
	}
	for _, h := range hostnames {
		if h = NormalizeHost(h); h != "" {
			c.hostnames = append(c.hostnames, h)
		}
	}
	for _, s := range subdomains {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || s == string(Unroutable) || strings.Contains(s, ".") {
			continue
		}
		c.subdomains[s] = struct{}{}
	}
	return c
}

// Mode returns the classification mode.
func (c *Classifier) Mode() Mode { return c.mode }

// Classify derives the tenant for host.
func (c *Classifier) Classify(host string) Tenant {
	h := NormalizeHost(host)
	if h == "" {
		return Unroutable
	}
	label := c.label(h)
	if _, ok := c.subdomains[label]; ok {
		return Tenant(label)
	}
	return Default
}

// label returns the part of h in front of the matched base hostname, or ""
// when no base hostname matches.
func (c *Classifier) label(h string) string {
	if c.mode == Dev {
		return strings.TrimSuffix(h, ".localhost")
	}
	for _, base := range c.hostnames {
		if strings.HasSuffix(h, "."+base) {
			return strings.TrimSuffix(h, "."+base)
		}
	}
	return ""
}

// LoginURL returns the absolute login page URL for a request that arrived on
// host. The tenant label is removed so login always happens on the main site.
func (c *Classifier) LoginURL(host string) string {
	scheme := "https://"
	if c.mode == Dev {
		scheme = "http://"
	}
	raw := strings.ToLower(strings.TrimSpace(host))
	if raw == "" {
		if c.mode == Dev {
			return "http://localhost:3000/login"
		}
		return "/login"
	}
	if t := c.Classify(raw); t.Recognized() {
		raw = strings.TrimPrefix(raw, string(t)+".")
	}
	return scheme + raw + "/login"
}

// NormalizeHost lowercases raw and strips any port, IPv6 brackets and a
// trailing dot.
func NormalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}
	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		host = h
	} else if strings.Count(host, ":") == 1 {
		left, right, ok := strings.Cut(host, ":")
		if ok && isDigits(right) {
			host = left
		}
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
