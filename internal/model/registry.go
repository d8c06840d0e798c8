// Package model maps Go types to record kinds and offers typed
// pass-through access to the coordinator.
//
// Kinds are resolved once, at registration:
//
//	reg := model.NewRegistry()
//	orders, err := model.Register[Order](reg, coord)   // kind "Order"
//	items, err := model.RegisterAs[LineItem](reg, coord, "Item")
//
// Struct values convert to record fields through their JSON form, so json
// tags name the fields. Floats are rejected like everywhere else.
package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	// ErrUnnamedType is returned when registering a type with no name
	// (an anonymous struct, a slice, a map).
	ErrUnnamedType = errors.New("model: type has no name")

	// ErrKindTaken is returned when two types claim the same kind.
	ErrKindTaken = errors.New("model: kind already registered")

	// ErrTypeRegistered is returned when a type is registered again under a
	// different kind.
	ErrTypeRegistered = errors.New("model: type already registered")
)

// Registry is the static map from declared Go types to kind names.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]string
	byKind map[string]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]string),
		byKind: make(map[string]reflect.Type),
	}
}

// KindOf returns the kind registered for T.
func KindOf[T any](reg *Registry) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	kind, ok := reg.byType[reflect.TypeOf((*T)(nil)).Elem()]
	return kind, ok
}

// Kinds returns the registered kind names.
func (reg *Registry) Kinds() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.byKind))
	for k := range reg.byKind {
		out = append(out, k)
	}
	return out
}

// TypeKind derives a kind name from a type: its qualified name without the
// package ("main.Order" gives "Order"). Pointer types resolve to their
// element type.
func TypeKind(t reflect.Type) (string, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrUnnamedType, t)
	}
	// Instantiated generics carry their type arguments: Box[main.Order].
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name, nil
}

func (reg *Registry) add(t reflect.Type, kind string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.byKind[kind]; ok && existing != t {
		return fmt.Errorf("%w: %q by %s", ErrKindTaken, kind, existing)
	}
	if existing, ok := reg.byType[t]; ok && existing != kind {
		return fmt.Errorf("%w: %s as %q", ErrTypeRegistered, t, existing)
	}
	reg.byType[t] = kind
	reg.byKind[kind] = t
	return nil
}
