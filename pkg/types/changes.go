package types

import "sort"

// ChangeSet is the input of an incremental update. Paths are repo-relative.
type ChangeSet struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// IsEmpty reports whether there is nothing to apply
func (c ChangeSet) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Len returns the total number of paths
func (c ChangeSet) Len() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// Normalize cleans, de-duplicates and sorts every list. A path listed in more
// than one list keeps the strongest operation: deleted, then modified, then added.
func (c ChangeSet) Normalize() ChangeSet {
	seen := make(map[string]bool)
	pick := func(paths []string) []string {
		var out []string
		for _, p := range paths {
			if p == "" {
				continue
			}
			p = NormalizePath(p)
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
		sort.Strings(out)
		return out
	}

	deleted := pick(c.Deleted)
	modified := pick(c.Modified)
	added := pick(c.Added)
	return ChangeSet{Added: added, Modified: modified, Deleted: deleted}
}
