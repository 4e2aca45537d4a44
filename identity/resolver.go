// Package identity normalizes account identifiers.
//
// Canonical form is "name@domain", lowercase. Three inputs are accepted:
// a bare local name ("alice"), the federated form ("alice@example.org") and
// the homeserver form ("@alice:example.org").
package identity

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/socialgraph/errs"
)

// MaxLength caps the canonical identifier length.
const MaxLength = 255

// ID is a canonical account identifier.
type ID string

func (id ID) String() string { return string(id) }

// Name returns the local part.
func (id ID) Name() string {
	name, _, _ := strings.Cut(string(id), "@")
	return name
}

// Domain returns the server part.
func (id ID) Domain() string {
	_, domain, _ := strings.Cut(string(id), "@")
	return domain
}

// Resolver validates identifiers against the local server name.
type Resolver struct {
	serverName string
}

// NewResolver creates a Resolver for the given local domain.
func NewResolver(serverName string) *Resolver {
	return &Resolver{serverName: strings.ToLower(strings.TrimSpace(serverName))}
}

// ServerName returns the local domain.
func (r *Resolver) ServerName() string { return r.serverName }

// Resolve returns the canonical ID for raw or an error wrapping
// errs.ErrInvalidIdentifier. Remote domains are not contacted.
func (r *Resolver) Resolve(raw string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", errs.ErrInvalidIdentifier)
	}

	var name, domain string
	switch {
	case strings.HasPrefix(s, "@"):
		var ok bool
		name, domain, ok = strings.Cut(s[1:], ":")
		if !ok {
			return "", fmt.Errorf("%w: %q missing server name", errs.ErrInvalidIdentifier, raw)
		}
	case strings.Contains(s, "@"):
		name, domain, _ = strings.Cut(s, "@")
	default:
		name, domain = s, r.serverName
	}

	if err := validName(name); err != nil {
		return "", fmt.Errorf("%w: %q %s", errs.ErrInvalidIdentifier, raw, err)
	}
	if err := validDomain(domain); err != nil {
		return "", fmt.Errorf("%w: %q %s", errs.ErrInvalidIdentifier, raw, err)
	}
	id := ID(name + "@" + domain)
	if len(id) > MaxLength {
		return "", fmt.Errorf("%w: %q too long", errs.ErrInvalidIdentifier, raw)
	}
	return id, nil
}

// IsLocal reports whether id belongs to this server.
func (r *Resolver) IsLocal(id ID) bool {
	return id.Domain() == r.serverName
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case strings.ContainsRune("._=-/+", c):
		default:
			return fmt.Errorf("invalid character %q in name", c)
		}
	}
	return nil
}

func validDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("empty domain")
	}
	host := domain
	if h, port, ok := strings.Cut(domain, ":"); ok {
		if port == "" || len(port) > 5 || strings.Trim(port, "0123456789") != "" {
			return fmt.Errorf("invalid port %q", port)
		}
		host = h
	}
	if host == "" || len(host) > 253 {
		return fmt.Errorf("invalid host")
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("invalid host label %q", label)
		}
		for _, c := range label {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return fmt.Errorf("invalid character %q in host", c)
			}
		}
	}
	return nil
}
