package rules

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Function is a helper callable from rule expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds rule helpers keyed by lower-cased name. It is safe
// for concurrent use.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry returns a registry with no helpers.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// EventFunctions returns a registry seeded with the event helpers every
// ignore filter exposes:
//
//	has_tag(tags, key)        tag key is present
//	tag_value(tags, key)      tag value, or "" when missing
//	raised(exception, type)   an exception in the chain has the given type
func EventFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	registry.functions["has_tag"] = hasTag
	registry.functions["tag_value"] = tagValue
	registry.functions["raised"] = raised
	return registry
}

// Register adds fn under name. Names are case-insensitive and may only be
// registered once.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("rules: helper %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("rules: helper name must not be empty")
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("rules: helper %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a copy of the helper table.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the helper registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("rules: no helpers registered")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("rules: helper %q not registered", name)
	}
	return fn(args...)
}

// Names lists helper names in sorted order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hasTag(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("rules: has_tag expects tags and a key")
	}
	_, ok := lookup(args[0], fmt.Sprint(args[1]))
	return ok, nil
}

func tagValue(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("rules: tag_value expects tags and a key")
	}
	value, ok := lookup(args[0], fmt.Sprint(args[1]))
	if !ok || value == nil {
		return "", nil
	}
	return fmt.Sprint(value), nil
}

func raised(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("rules: raised expects an exception list and a type")
	}
	want := fmt.Sprint(args[1])
	chain := reflect.ValueOf(unwrapNative(args[0]))
	if !chain.IsValid() || (chain.Kind() != reflect.Slice && chain.Kind() != reflect.Array) {
		return false, nil
	}
	for i := 0; i < chain.Len(); i++ {
		if kind, ok := lookup(chain.Index(i).Interface(), "type"); ok && fmt.Sprint(kind) == want {
			return true, nil
		}
	}
	return false, nil
}

// lookup reads key from any map whose keys print as strings, which covers
// decoded payloads and the map values handed over by the CEL runtime.
func lookup(container any, key string) (any, bool) {
	m := reflect.ValueOf(unwrapNative(container))
	if !m.IsValid() || m.Kind() != reflect.Map || m.IsNil() {
		return nil, false
	}
	iter := m.MapRange()
	for iter.Next() {
		if fmt.Sprint(unwrapNative(iter.Key().Interface())) == key {
			return unwrapNative(iter.Value().Interface()), true
		}
	}
	return nil, false
}

func unwrapNative(value any) any {
	if native, ok := value.(interface{ Value() any }); ok {
		return native.Value()
	}
	return value
}
