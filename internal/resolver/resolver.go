// Package resolver answers "does installed package X expose member Y" for
// the cross-file reference checker. Introspection always happens in a child
// interpreter; results, including failures, are cached per Resolver.
package resolver

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultCacheSize bounds the number of packages remembered by one Resolver.
const DefaultCacheSize = 512

// Surface is what introspection learned about a module. Complete is false
// when the names were read from source, which misses members bound at import
// time (enum.global_enum, globals().update and the like).
type Surface struct {
	Names    []string
	Complete bool
}

// Introspector lists the members of a module.
type Introspector interface {
	// Introspect returns the cheapest available surface of module.
	Introspect(ctx context.Context, module string) (Surface, error)
	// Import lists the members of the imported module. Its result is
	// authoritative.
	Import(ctx context.Context, module string) ([]string, error)
}

// surface is a cached lookup. A nil members set means unknown.
type surface struct {
	members  map[string]struct{}
	complete bool
	// imported records a finished confirmation attempt, successful or not.
	imported bool
}

// Resolver caches introspection results for the lifetime of one run. It is
// safe for concurrent use; concurrent lookups of one module share a single
// introspection.
type Resolver struct {
	intro  Introspector
	cache  *lru.Cache[string, surface]
	group  Group
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for introspection failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Resolver backed by intro with a cache of size entries
// (DefaultCacheSize when size <= 0).
func New(intro Introspector, size int, opts ...Option) (*Resolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, surface](size)
	if err != nil {
		return nil, err
	}
	r := &Resolver{intro: intro, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HasMember reports whether module exposes member. known is false when the
// module's surface could not be established; callers must not report a
// missing member then. A member missing from a statically read surface is
// confirmed by importing the module before it is reported absent.
func (r *Resolver) HasMember(ctx context.Context, module, member string) (has, known bool) {
	s := r.lookup(ctx, module)
	if len(s.members) == 0 {
		return false, false
	}
	if _, ok := s.members[member]; ok {
		return true, true
	}
	if s.complete {
		return false, true
	}
	if !s.imported {
		s = r.confirm(ctx, module)
	}
	if _, ok := s.members[member]; ok {
		return true, true
	}
	return false, s.complete
}

// Len reports how many modules are cached.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

func (r *Resolver) lookup(ctx context.Context, module string) surface {
	if s, ok := r.cache.Get(module); ok {
		return s
	}
	v, _, shared := r.group.Do(module, func() (interface{}, error) {
		if s, ok := r.cache.Get(module); ok {
			return s, nil
		}
		var s surface
		got, err := r.intro.Introspect(ctx, module)
		if err != nil {
			r.logger.Warn("external package introspection failed",
				zap.String("module", module), zap.Error(err))
			s.complete, s.imported = true, true
		} else {
			s = surface{members: toSet(got.Names), complete: got.Complete, imported: got.Complete}
		}
		r.store(ctx, module, s)
		return s, nil
	})
	if shared {
		r.logger.Debug("introspection shared", zap.String("module", module))
	}
	s, _ := v.(surface)
	return s
}

// confirm upgrades a static surface by importing the module. When the import
// fails the static names stay, but misses remain unknown.
func (r *Resolver) confirm(ctx context.Context, module string) surface {
	v, _, _ := r.group.Do("import:"+module, func() (interface{}, error) {
		prev, _ := r.cache.Get(module)
		if prev.imported {
			return prev, nil
		}
		names, err := r.intro.Import(ctx, module)
		if err != nil {
			r.logger.Warn("confirming static package surface failed",
				zap.String("module", module), zap.Error(err))
			prev.imported = true
			r.store(ctx, module, prev)
			return prev, nil
		}
		merged := toSet(names)
		for n := range prev.members {
			merged[n] = struct{}{}
		}
		s := surface{members: merged, complete: true, imported: true}
		r.store(ctx, module, s)
		return s, nil
	})
	s, _ := v.(surface)
	return s
}

// store caches s unless the lookup was cut short by cancellation.
func (r *Resolver) store(ctx context.Context, module string, s surface) {
	if ctx.Err() == nil {
		r.cache.Add(module, s)
	}
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
