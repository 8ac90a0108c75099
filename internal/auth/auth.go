// Package auth validates API keys and carries the caller's identity through
// request contexts.
package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

const (
	// RoleAnalyst may ask questions, translate and read history.
	RoleAnalyst = "analyst"
	// RoleViewer may browse the database description and examples.
	RoleViewer = "viewer"
)

type Identity struct {
	Principal string
	Roles     []string
}

// HasRole reports whether the identity holds role. Analysts implicitly hold
// the viewer role.
func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role || (candidate == RoleAnalyst && role == RoleViewer) {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator holds keys parsed from configuration, indexed by
// their SHA-256 digest.
type StaticAPIKeyValidator struct {
	keys map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses "key:principal:role|role" entries separated
// by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[[sha256.Size]byte]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		var roles []string
		for _, role := range strings.Split(parts[2], "|") {
			switch role = strings.TrimSpace(role); role {
			case "":
			case RoleAnalyst, RoleViewer:
				roles = append(roles, role)
			default:
				return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		sort.Strings(roles)
		validator.keys[sha256.Sum256([]byte(key))] = Identity{Principal: principal, Roles: roles}
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}
