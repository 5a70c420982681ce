package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Adaptor answers authorization questions for the permissions it lists.
type Adaptor interface {
	Permissions() []Type
	AuthorizationStatus(Type) Status
	RequestAuthorization(ctx context.Context, p Permission) (Status, error)
}

// Registry routes permission questions to registered adaptors. A process
// builds one and passes it to every recorder.
type Registry struct {
	mu       sync.RWMutex
	adaptors map[Type]Adaptor
}

func NewRegistry(adaptors ...Adaptor) *Registry {
	r := &Registry{adaptors: make(map[Type]Adaptor)}
	for _, a := range adaptors {
		r.RegisterAdaptorIfNeeded(a)
	}
	return r
}

// RegisterAdaptorIfNeeded registers a for each of its permissions that has
// no adaptor yet.
func (r *Registry) RegisterAdaptorIfNeeded(a Adaptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range a.Permissions() {
		if _, exists := r.adaptors[t]; exists {
			continue
		}
		r.adaptors[t] = a
	}
}

func (r *Registry) adaptor(t Type) (Adaptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adaptors[t]
	return a, ok
}

// AuthorizationStatus returns Denied for permissions nobody registered.
func (r *Registry) AuthorizationStatus(t Type) Status {
	a, ok := r.adaptor(t)
	if !ok {
		slog.Warn("Permission is not registered", "permission", t)
		return Denied
	}
	return a.AuthorizationStatus(t)
}

// RequestAuthorization asks the adaptor for p, failing closed when none is
// registered.
func (r *Registry) RequestAuthorization(ctx context.Context, p Permission) (Status, error) {
	a, ok := r.adaptor(p.Identifier())
	if !ok {
		return Denied, &Error{
			Kind:       NotHandled,
			Permission: p,
			Status:     Denied,
			Message:    fmt.Sprintf("%s was not recognized as a registered permission.", p.Identifier()),
		}
	}
	return a.RequestAuthorization(ctx, p)
}

// Reset drops every registered adaptor.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adaptors = make(map[Type]Adaptor)
}

// StaticAdaptor answers with fixed statuses. Requests return the stored
// status unchanged.
type StaticAdaptor struct {
	Statuses map[Type]Status
}

// GrantAll authorizes every listed permission.
func GrantAll(types ...Type) *StaticAdaptor {
	s := &StaticAdaptor{Statuses: make(map[Type]Status, len(types))}
	for _, t := range types {
		s.Statuses[t] = Authorized
	}
	return s
}

func (s *StaticAdaptor) Permissions() []Type {
	out := make([]Type, 0, len(s.Statuses))
	for t := range s.Statuses {
		out = append(out, t)
	}
	return out
}

func (s *StaticAdaptor) AuthorizationStatus(t Type) Status {
	if status, ok := s.Statuses[t]; ok {
		return status
	}
	return NotDetermined
}

func (s *StaticAdaptor) RequestAuthorization(_ context.Context, p Permission) (Status, error) {
	status := s.AuthorizationStatus(p.Identifier())
	if status.IsDenied() {
		return status, NotAuthorizedError(p, status)
	}
	return status, nil
}

// FuncAdaptor adapts functions to the Adaptor interface.
type FuncAdaptor struct {
	Types   []Type
	StatusF func(Type) Status
	Request func(ctx context.Context, p Permission) (Status, error)
}

func (f FuncAdaptor) Permissions() []Type { return f.Types }

func (f FuncAdaptor) AuthorizationStatus(t Type) Status {
	if f.StatusF == nil {
		return NotDetermined
	}
	return f.StatusF(t)
}

func (f FuncAdaptor) RequestAuthorization(ctx context.Context, p Permission) (Status, error) {
	if f.Request == nil {
		return f.AuthorizationStatus(p.Identifier()), nil
	}
	return f.Request(ctx, p)
}
