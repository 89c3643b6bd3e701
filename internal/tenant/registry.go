package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/core/config"
)

var ErrUnknownTenant = errors.New("unknown tenant")

// Registry owns one State per configured tenant. States are built on first
// use and live for the lifetime of the process.
type Registry struct {
	ctx      context.Context
	deps     Deps
	profiles map[string]config.Tenant
	states   *xsync.Map[string, *State]
	wg       sync.WaitGroup
}

// NewRegistry returns a registry whose schedulers stop when ctx is done.
func NewRegistry(ctx context.Context, profiles []config.Tenant, deps Deps) *Registry {
	byID := make(map[string]config.Tenant, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return &Registry{
		ctx:      ctx,
		deps:     deps,
		profiles: byID,
		states:   xsync.NewMap[string, *State](),
	}
}

// Get returns the tenant's state, creating it and starting its scheduler on
// first use. Concurrent callers all get the same instance.
func (r *Registry) Get(tenantID string) (*State, error) {
	profile, ok := r.profiles[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	var buildErr error
	st, _ := r.states.LoadOrCompute(tenantID, func() (*State, bool) {
		s, err := NewState(profile, r.deps)
		if err != nil {
			buildErr = err
			return nil, true
		}
		r.start(s)
		return s, false
	})
	if buildErr != nil {
		return nil, buildErr
	}
	return st, nil
}

// Known reports whether tenantID is configured, without creating state.
func (r *Registry) Known(tenantID string) bool {
	_, ok := r.profiles[tenantID]
	return ok
}

// Range calls fn for every tenant created so far.
func (r *Registry) Range(fn func(st *State) bool) {
	r.states.Range(func(_ string, st *State) bool {
		return fn(st)
	})
}

// WarmUp creates state for every configured tenant.
func (r *Registry) WarmUp() error {
	for id := range r.profiles {
		if _, err := r.Get(id); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every scheduler has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) start(st *State) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := logger.WithLogFields(r.ctx, logger.LogFields{TenantID: logger.Ptr(st.ID)})
		_ = st.Run(ctx)
	}()
}
