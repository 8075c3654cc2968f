package ingest

// SourceRecord is one logical source row, keyed by result column name.
type SourceRecord map[string]any

// ChunkRecord is one ordered slice of a long text field. ChunkPosition is the
// rune offset of the chunk start within the field; ChunkOrder runs 0..n-1
// across every chunked field of the owning record.
type ChunkRecord struct {
	ChunkID       string    `json:"chunk_id"`
	ChunkText     string    `json:"chunk_text"`
	ChunkPosition int       `json:"chunk_position"`
	ChunkOrder    int       `json:"chunk_order"`
	ContentID     string    `json:"content_id"`
	Field         string    `json:"field"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

// Properties exposes the chunk as a column map so chunk nodes can be built
// from the model like any other node.
func (c ChunkRecord) Properties() map[string]any {
	props := map[string]any{
		"chunk_id":       c.ChunkID,
		"chunk_text":     c.ChunkText,
		"chunk_position": c.ChunkPosition,
		"chunk_order":    c.ChunkOrder,
		"content_id":     c.ContentID,
		"field":          c.Field,
	}
	if len(c.Embedding) > 0 {
		props["embedding"] = c.Embedding
	}
	return props
}

type BatchOutcome string

const (
	BatchCompleted BatchOutcome = "completed"
	BatchPartial   BatchOutcome = "partial"
	BatchFailed    BatchOutcome = "failed"
	BatchEmpty     BatchOutcome = "empty"
)

// BatchResult summarizes one pass of a page through extract, chunk and load.
type BatchResult struct {
	BatchNum  int          `json:"batch_num"`
	Offset    int          `json:"offset"`
	Limit     int          `json:"limit"`
	RecordIDs []string     `json:"record_ids"`
	Outcome   BatchOutcome `json:"outcome"`
}
