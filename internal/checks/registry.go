package checks

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry = make(map[string]Check)
	mu       sync.RWMutex
)

func Register(c Check) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[c.ID()]; exists {
		panic(fmt.Sprintf("check %s already registered", c.ID()))
	}
	registry[c.ID()] = c
}

// List returns all registered checks in run order.
func List() []Check {
	mu.RLock()
	defer mu.RUnlock()
	return list()
}

func list() []Check {
	var checks []Check
	for _, c := range registry {
		checks = append(checks, c)
	}
	sort.Slice(checks, func(i, j int) bool {
		if checks[i].Order() != checks[j].Order() {
			return checks[i].Order() < checks[j].Order()
		}
		return checks[i].ID() < checks[j].ID()
	})
	return checks
}

// Get returns the check registered under id.
func Get(id string) (Check, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[id]
	return c, ok
}

// Resolve selects checks from a comma-separated list of ids. The result is
// always in run order regardless of the order given; an empty selector
// selects everything.
func Resolve(selector string) ([]Check, error) {
	mu.RLock()
	defer mu.RUnlock()

	if strings.TrimSpace(selector) == "" {
		return list(), nil
	}

	want := make(map[string]struct{})
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := registry[id]; !ok {
			return nil, fmt.Errorf("check not found: %s", id)
		}
		want[id] = struct{}{}
	}

	var selected []Check
	for _, c := range list() {
		if _, ok := want[c.ID()]; ok {
			selected = append(selected, c)
		}
	}
	return selected, nil
}
