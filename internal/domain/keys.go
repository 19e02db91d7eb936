package domain

import (
	"fmt"
	"regexp"
)

// KeyPrefix namespaces every store key. Set once from config at startup.
var KeyPrefix = "entsearch:"

var tenantRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)

// ValidateTenant checks that a tenant id is present and safe to embed in a key hash tag.
func ValidateTenant(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if !tenantRegex.MatchString(tenantID) {
		return fmt.Errorf("%w: tenant id must match [a-zA-Z0-9_.-]{1,128}", ErrTenantRequired)
	}
	return nil
}

// TenantKey builds a key scoped to one tenant. The tenant sits in a hash tag so
// that all of its keys land in the same cluster slot.
func TenantKey(tenantID string, parts ...string) string {
	key := KeyPrefix + "{" + tenantID + "}"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
