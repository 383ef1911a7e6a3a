package domain

// GraphSnapshot is the per-run parent-child graph as persisted: child to
// parent (first discoverer wins), parent to children, and the root path of
// every URL. Written once per run with replace semantics.
type GraphSnapshot struct {
	RunID       string              `json:"run_id"`
	StartURL    string              `json:"start_url"`
	ParentMap   map[string]string   `json:"parent_map"`
	ChildrenMap map[string][]string `json:"children_map"`
	PathMap     map[string][]string `json:"path_map"`
	Statistics  GraphStatistics     `json:"statistics"`
}

// GraphStatistics summarizes the shape of the parent-child graph.
type GraphStatistics struct {
	TotalPages   int         `json:"total_pages"`
	MaxDepth     int         `json:"max_depth"`
	PagesByDepth map[int]int `json:"pages_by_depth"`
}
