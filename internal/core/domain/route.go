package domain

// Route is the backend selection for a single question.
type Route string

const (
	RouteGraphOnly     Route = "graph_only"
	RouteRetrievalOnly Route = "retrieval_only"
	RouteHybrid        Route = "hybrid"
)

func (r Route) Valid() bool {
	switch r {
	case RouteGraphOnly, RouteRetrievalOnly, RouteHybrid:
		return true
	default:
		return false
	}
}

func (r Route) String() string {
	return string(r)
}

// ClassificationScores exposes the raw heuristic scores behind a Route.
type ClassificationScores struct {
	Route          Route `json:"route"`
	GraphScore     int   `json:"graph_score"`
	RetrievalScore int   `json:"retrieval_score"`
}
