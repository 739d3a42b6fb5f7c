// Package authz implements the authorization pipeline for patient records:
// role capability, ownership verification and the checkpoint middleware chain.
package authz

import "strings"

// Operation classes distinguished by the role gate.
const (
	ClassRead  = "read"
	ClassWrite = "write"
)

// writerRoles is the fixed medical-staff set permitted to perform write
// operations. Administrators bypass this gate upstream.
var writerRoles = map[string]struct{}{
	"doctor": {},
	"nurse":  {},
}

// RoleAllows reports whether a role permits the operation class at all.
// Reads are open to any authenticated principal; writes require medical
// staff. Stateless and deterministic; the caller records the audit entry.
func RoleAllows(position string, write bool) bool {
	if !write {
		return true
	}
	_, ok := writerRoles[strings.ToLower(strings.TrimSpace(position))]
	return ok
}
