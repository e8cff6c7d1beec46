package modules

import "sort"

// Tracker keeps the most recent record per file path across a commit window.
// Not safe for concurrent use.
type Tracker struct {
	watch  Watch
	latest map[string]Module
}

func NewTracker(w Watch) *Tracker {
	return &Tracker{watch: w, latest: make(map[string]Module)}
}

// Observe records f as changed by commit c. Files outside the watch are
// ignored. A record is replaced only by a strictly later timestamp.
func (t *Tracker) Observe(c Commit, f ChangedFile) {
	if !t.watch.Matches(f.Filename) {
		return
	}
	cur, ok := t.latest[f.Filename]
	if ok && !c.Date.After(cur.LastCommit) {
		return
	}
	t.latest[f.Filename] = NewModule(f, c.Date)
}

// Modules returns every tracked module whose latest status is not removed,
// sorted by path.
func (t *Tracker) Modules() []Module {
	out := make([]Module, 0, len(t.latest))
	for _, m := range t.latest {
		if m.Status == StatusRemoved {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len is the number of tracked paths, removed ones included.
func (t *Tracker) Len() int { return len(t.latest) }
