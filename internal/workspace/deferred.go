package workspace

import (
	"sort"
	"sync"
)

// deferredChanges collects changes that could not be applied because the
// index was busy. They are merged into the next update.
type deferredChanges struct {
	mu    sync.Mutex
	paths map[string]struct{}
	full  bool // a full build is owed
}

// add records paths; nil means a full build
func (d *deferredChanges) add(paths []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if paths == nil {
		d.full = true
		return
	}
	if d.paths == nil {
		d.paths = make(map[string]struct{}, len(paths))
	}
	for _, p := range paths {
		d.paths[p] = struct{}{}
	}
}

// merge empties the set and returns it joined with paths, sorted. The result
// is nil when either side asks for a full build.
func (d *deferredChanges) merge(paths []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	full := d.full || paths == nil
	owed := d.paths
	d.paths, d.full = nil, false
	if full {
		return nil
	}
	if len(owed) == 0 {
		return paths
	}

	for _, p := range paths {
		owed[p] = struct{}{}
	}
	out := make([]string, 0, len(owed))
	for p := range owed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (d *deferredChanges) empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.full && len(d.paths) == 0
}
