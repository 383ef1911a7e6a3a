// Package graph tracks the parent-child discovery graph of a crawl: which
// page first linked to each URL, and the click path from the start URL to
// every tracked page. Because a child's parent is set exactly once, the
// graph is always a forest rooted at the start URL.
package graph

import (
	"sync"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/urlutil"
)

// Tracker records (parent, child) edges as the crawl discovers them.
// Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	startURL string
	parents  map[string]string
	children map[string][]string
	paths    map[string][]string
}

// NewTracker creates a tracker rooted at the given start URL. The start URL
// is canonicalized and seeded with a path of itself.
func NewTracker(startURL string) (*Tracker, error) {
	canonical, err := urlutil.Canonicalize(startURL)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		startURL: canonical,
		parents:  make(map[string]string),
		children: make(map[string][]string),
		paths:    map[string][]string{canonical: {canonical}},
	}, nil
}

// StartURL returns the canonical root of the graph.
func (t *Tracker) StartURL() string {
	return t.startURL
}

// AddEdge records that parent linked to child. The first edge for a child
// wins; later edges, self-edges, edges to the start URL, and edges from an
// untracked parent are ignored. Reports whether the edge was recorded.
func (t *Tracker) AddEdge(parentURL, childURL string) bool {
	parent, err := urlutil.Canonicalize(parentURL)
	if err != nil {
		return false
	}
	child, err := urlutil.Canonicalize(childURL)
	if err != nil {
		return false
	}
	if parent == child {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, tracked := t.paths[child]; tracked {
		return false
	}
	parentPath, tracked := t.paths[parent]
	if !tracked {
		return false
	}

	t.parents[child] = parent
	t.children[parent] = append(t.children[parent], child)

	path := make([]string, 0, len(parentPath)+1)
	path = append(path, parentPath...)
	path = append(path, child)
	t.paths[child] = path

	return true
}

// Parent returns the first discoverer of a URL. The second return is false
// for the start URL and for untracked URLs.
func (t *Tracker) Parent(rawURL string) (string, bool) {
	canonical, err := urlutil.Canonicalize(rawURL)
	if err != nil {
		return "", false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	parent, ok := t.parents[canonical]
	return parent, ok
}

// Children returns the URLs discovered from a page, in discovery order.
func (t *Tracker) Children(rawURL string) []string {
	canonical, err := urlutil.Canonicalize(rawURL)
	if err != nil {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	children := t.children[canonical]
	out := make([]string, len(children))
	copy(out, children)
	return out
}

// Path returns the click path from the start URL to the given URL. An
// untracked URL yields a single-element path of itself.
func (t *Tracker) Path(rawURL string) []string {
	canonical, err := urlutil.Canonicalize(rawURL)
	if err != nil {
		return []string{rawURL}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	path, ok := t.paths[canonical]
	if !ok {
		return []string{canonical}
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}

// Depth returns a URL's click depth: path length minus one.
func (t *Tracker) Depth(rawURL string) int {
	return len(t.Path(rawURL)) - 1
}

// HasChildren reports whether any edge was recorded from the given URL.
// Pages with children retain their HTML in storage.
func (t *Tracker) HasChildren(rawURL string) bool {
	canonical, err := urlutil.Canonicalize(rawURL)
	if err != nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.children[canonical]) > 0
}

// Snapshot exports the graph for persistence, including shape statistics.
func (t *Tracker) Snapshot(runID string) *domain.GraphSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parentMap := make(map[string]string, len(t.parents))
	for child, parent := range t.parents {
		parentMap[child] = parent
	}

	childrenMap := make(map[string][]string, len(t.children))
	for parent, children := range t.children {
		copied := make([]string, len(children))
		copy(copied, children)
		childrenMap[parent] = copied
	}

	pathMap := make(map[string][]string, len(t.paths))
	maxDepth := 0
	pagesByDepth := make(map[int]int)
	for url, path := range t.paths {
		copied := make([]string, len(path))
		copy(copied, path)
		pathMap[url] = copied

		depth := len(path) - 1
		pagesByDepth[depth]++
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	return &domain.GraphSnapshot{
		RunID:       runID,
		StartURL:    t.startURL,
		ParentMap:   parentMap,
		ChildrenMap: childrenMap,
		PathMap:     pathMap,
		Statistics: domain.GraphStatistics{
			TotalPages:   len(t.paths),
			MaxDepth:     maxDepth,
			PagesByDepth: pagesByDepth,
		},
	}
}
