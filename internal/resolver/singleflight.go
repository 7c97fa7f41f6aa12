package resolver

import (
	"golang.org/x/sync/singleflight"
)

// Group coalesces concurrent introspections of the same module.
type Group struct {
	g singleflight.Group
}

func (g *Group) Do(module string, fn func() (interface{}, error)) (interface{}, error, bool) {
	v, err, shared := g.g.Do(module, fn)
	return v, err, shared
}
