package aflib

import (
	"sync"
)

// AttributeHandler is called when an attribute's cached value changes.
type AttributeHandler interface {
	OnAttributeChange(attrID uint16, value []byte) error
}

// AttributeHandlerFunc is a function adapter for AttributeHandler.
type AttributeHandlerFunc func(attrID uint16, value []byte) error

func (f AttributeHandlerFunc) OnAttributeChange(attrID uint16, value []byte) error {
	return f(attrID, value)
}

// AttributeRegistry caches the last known value of each attribute and
// notifies handlers on change. The client feeds it from service
// notifications; firmware feeds it from local hardware state.
type AttributeRegistry struct {
	mu       sync.RWMutex
	values   map[uint16][]byte
	handlers []AttributeHandler
}

// NewAttributeRegistry creates an empty attribute registry.
func NewAttributeRegistry() *AttributeRegistry {
	return &AttributeRegistry{
		values: make(map[uint16][]byte),
	}
}

// Set stores the current value for an attribute and notifies handlers.
// The value is copied.
func (r *AttributeRegistry) Set(attrID uint16, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	r.mu.Lock()
	r.values[attrID] = stored
	handlers := make([]AttributeHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, h := range handlers {
		if err := h.OnAttributeChange(attrID, stored); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the current value for an attribute.
func (r *AttributeRegistry) Get(attrID uint16) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[attrID]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Seed loads initial values without notifying handlers, e.g. defaults for
// attributes flagged has_default.
func (r *AttributeRegistry) Seed(values map[uint16][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range values {
		stored := make([]byte, len(v))
		copy(stored, v)
		r.values[id] = stored
	}
}

// Len returns the number of cached attribute values.
func (r *AttributeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// AddHandler registers a handler for attribute value changes.
func (r *AttributeRegistry) AddHandler(h AttributeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// AddHandlerFunc registers a function handler for attribute value changes.
func (r *AttributeRegistry) AddHandlerFunc(f AttributeHandlerFunc) {
	r.AddHandler(f)
}
