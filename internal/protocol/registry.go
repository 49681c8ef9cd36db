package protocol

import (
	"context"
	"sort"
	"sync"

	"github.com/sadopc/reqdeck/internal/errdef"
)

// Registry dispatches requests to protocol implementations by name.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
}

// NewRegistry creates a registry holding the given protocols.
func NewRegistry(protocols ...Protocol) *Registry {
	r := &Registry{
		protocols: make(map[string]Protocol),
	}
	for _, p := range protocols {
		r.Register(p)
	}
	return r
}

// Register adds a protocol implementation, replacing one with the same name.
func (r *Registry) Register(p Protocol) {
	r.mu.Lock()
	r.protocols[p.Name()] = p
	r.mu.Unlock()
}

// Get returns a protocol by name.
func (r *Registry) Get(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[name]
	return p, ok
}

// Execute validates req and hands it to its protocol. Validation problems
// carry errdef.CodeValidation; execution errors are returned as the protocol
// produced them.
func (r *Registry) Execute(ctx context.Context, req *Request) (*Response, error) {
	name := req.Protocol
	if name == "" {
		name = "http"
	}
	p, ok := r.Get(name)
	if !ok {
		return nil, errdef.New(errdef.CodeValidation, "unknown protocol: %s", name)
	}
	if err := p.Validate(req); err != nil {
		return nil, errdef.Wrap(errdef.CodeValidation, err, "validation failed")
	}
	return p.Execute(ctx, req)
}

// Names returns the registered protocol names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
