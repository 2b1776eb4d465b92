package graph

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind  = errors.New("unknown node kind")
	ErrEmptyKey     = errors.New("empty natural key")
	ErrKindMismatch = errors.New("attributes do not match node kind")
	ErrEmptyLabel   = errors.New("empty relationship label")
)

// RegistryError describes a rejected node or relationship registration.
type RegistryError struct {
	Op    string // "upsert_node", "add_relationship"
	Ref   NodeRef
	Cause error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Cause)
}

func (e *RegistryError) Unwrap() error {
	return e.Cause
}
