package system

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry keeps update functions ordered per phase. A function stays pending
// until every dependency is registered in the same or an earlier phase; it is
// then appended to its phase list, which places it after all of its
// dependencies. When several pending functions become ready together they are
// promoted in registration order.
type Registry struct {
	phases  [NumPhases][]*UpdateFunctionDesc
	byName  map[string]*UpdateFunctionDesc
	pending []*UpdateFunctionDesc
	names   map[string]struct{}
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		byName:  make(map[string]*UpdateFunctionDesc, 32),
		pending: make([]*UpdateFunctionDesc, 0, 8),
		names:   make(map[string]struct{}, 32),
		log:     log,
	}
}

// Register adds desc. Functions whose dependencies are not yet known are
// kept pending rather than rejected.
func (r *Registry) Register(desc UpdateFunctionDesc) error {
	if err := desc.validate(); err != nil {
		return err
	}
	if _, dup := r.names[desc.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateFunction, desc.Name)
	}
	d := desc
	d.DependsOn = append([]string(nil), desc.DependsOn...)
	r.names[d.Name] = struct{}{}
	r.pending = append(r.pending, &d)
	r.promote()
	return nil
}

func (r *Registry) ready(d *UpdateFunctionDesc) bool {
	for _, dep := range d.DependsOn {
		p, ok := r.byName[dep]
		if !ok || p.Phase > d.Phase {
			return false
		}
	}
	return true
}

func (r *Registry) promote() {
	for {
		moved := false
		rest := r.pending[:0:0]
		for _, d := range r.pending {
			if !r.ready(d) {
				rest = append(rest, d)
				continue
			}
			r.phases[d.Phase] = append(r.phases[d.Phase], d)
			r.byName[d.Name] = d
			moved = true
			r.log.Debug("update function registered",
				zap.String("function", d.Name),
				zap.String("owner", d.Owner),
				zap.Stringer("phase", d.Phase),
				zap.Int("granularity", d.Granularity),
			)
		}
		r.pending = rest
		if !moved {
			return
		}
	}
}

// Resolve reports every function still pending. The engine keeps running
// without them; each one is logged as an error.
func (r *Registry) Resolve() error {
	var errs error
	for _, d := range r.pending {
		reason := r.reason(d)
		r.log.Error("update function disabled",
			zap.String("function", d.Name),
			zap.String("owner", d.Owner),
			zap.String("reason", reason),
		)
		errs = multierr.Append(errs, fmt.Errorf("%w: %s: %s", ErrUnresolvedDependency, d.Name, reason))
	}
	return errs
}

func (r *Registry) reason(d *UpdateFunctionDesc) string {
	if r.inCycle(d) {
		return "dependency cycle"
	}
	var parts []string
	for _, dep := range d.DependsOn {
		if p, ok := r.byName[dep]; ok {
			if p.Phase > d.Phase {
				parts = append(parts, fmt.Sprintf("%q runs in later phase %s", dep, p.Phase))
			}
			continue
		}
		if _, ok := r.names[dep]; ok {
			parts = append(parts, fmt.Sprintf("%q is itself unresolved", dep))
			continue
		}
		parts = append(parts, fmt.Sprintf("%q is not registered", dep))
	}
	return strings.Join(parts, ", ")
}

func (r *Registry) pendingByName(name string) *UpdateFunctionDesc {
	for _, d := range r.pending {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func (r *Registry) inCycle(start *UpdateFunctionDesc) bool {
	seen := make(map[string]bool)
	var visit func(d *UpdateFunctionDesc) bool
	visit = func(d *UpdateFunctionDesc) bool {
		for _, dep := range d.DependsOn {
			if dep == start.Name {
				return true
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if next := r.pendingByName(dep); next != nil && visit(next) {
				return true
			}
		}
		return false
	}
	return visit(start)
}

// Functions returns the ordered functions of a phase.
func (r *Registry) Functions(p Phase) []UpdateFunctionDesc {
	if !p.Valid() {
		return nil
	}
	out := make([]UpdateFunctionDesc, len(r.phases[p]))
	for i, d := range r.phases[p] {
		out[i] = *d
	}
	return out
}

// Names returns the ordered function names of a phase.
func (r *Registry) Names(p Phase) []string {
	if !p.Valid() {
		return nil
	}
	out := make([]string, len(r.phases[p]))
	for i, d := range r.phases[p] {
		out[i] = d.Name
	}
	return out
}

// Unresolved returns the names of pending functions in registration order.
func (r *Registry) Unresolved() []string {
	out := make([]string, len(r.pending))
	for i, d := range r.pending {
		out[i] = d.Name
	}
	return out
}

// Len returns the number of resolved functions.
func (r *Registry) Len() int { return len(r.byName) }

func (r *Registry) phase(p Phase) []*UpdateFunctionDesc { return r.phases[p] }
