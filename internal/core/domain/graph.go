package domain

// GraphFact is one (source)-[relation]->(target) edge from the knowledge graph.
type GraphFact struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// EntityDescription is the secondary lookup shape used when no edges match.
type EntityDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GraphResult holds either facts, descriptions, or nothing. Miss records why it
// is empty (ErrNoDataFound or ErrBackendUnavailable); callers treat both alike.
type GraphResult struct {
	Keyword      string              `json:"keyword,omitempty"`
	Facts        []GraphFact         `json:"facts,omitempty"`
	Descriptions []EntityDescription `json:"descriptions,omitempty"`
	Miss         error               `json:"-"`
}

func (r GraphResult) Empty() bool {
	return len(r.Facts) == 0 && len(r.Descriptions) == 0
}

type GraphStats struct {
	Nodes              map[string]int64 `json:"nodes"`
	Relationships      map[string]int64 `json:"relationships"`
	TotalNodes         int64            `json:"total_nodes"`
	TotalRelationships int64            `json:"total_relationships"`
}
