package domain

// CorpusSource selects which corpus a retrieval chain answers from.
type CorpusSource string

const (
	CorpusDocuments CorpusSource = "documents"
	CorpusWeb       CorpusSource = "web"
)

type RetrievedChunk struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// WebResult is one organic web search hit.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Text renders the hit as an indexable passage.
func (r WebResult) Text() string {
	out := r.Title
	if r.Snippet != "" {
		if out != "" {
			out += "\n"
		}
		out += r.Snippet
	}
	if r.URL != "" {
		out += "\nSource: " + r.URL
	}
	return out
}
