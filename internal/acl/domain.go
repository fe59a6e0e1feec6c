// Package acl persists grant tuples and resolves effective permissions.
//
// Grants are (principal, resource key, kind) tuples partitioned by principal
// kind into two otherwise-identical relations. Permission kinds carry no
// ranking: write does not imply read, every kind is granted explicitly.
package acl

import (
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Kind is a permission kind. The enumeration is closed.
type Kind string

const (
	// Create permits creating entities under the resource.
	Create Kind = "create"
	// Read permits reading the resource.
	Read Kind = "read"
	// Write permits modifying the resource.
	Write Kind = "write"
	// Delete permits destroying the resource.
	Delete Kind = "delete"
)

// AllKinds returns every permission kind.
func AllKinds() []Kind {
	return []Kind{Create, Read, Write, Delete}
}

// ReadWriteDelete returns the non-create kinds, the usual set granted on an
// existing entity.
func ReadWriteDelete() []Kind {
	return []Kind{Read, Write, Delete}
}

// ParseKind validates a wire-format permission kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Create, Read, Write, Delete:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown permission kind %q", shared.ErrInvalidArgument, s)
	}
}

// ResourceGrant pairs a resource key with a granted kind, as returned by the
// unscoped all-resources scan.
type ResourceGrant struct {
	ResourceKey string `json:"resource_key"`
	Kind        Kind   `json:"kind"`
}
