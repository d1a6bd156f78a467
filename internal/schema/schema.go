// Package schema holds the data types shared across the ingestion and
// retrieval pipeline.
package schema

// ChunkMeta is the closed metadata structure attached to every stored chunk.
// Optional forward-compatible fields go into Extra rather than loose keys.
type ChunkMeta struct {
	Page        int               `json:"page"`
	Header      string            `json:"header"`
	Ordinal     int               `json:"ordinal"` // 1-based, dense across the whole document
	Fingerprint string            `json:"fingerprint"`
	Filename    string            `json:"filename"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Chunk is a contiguous span of a document's preprocessed text plus its
// metadata. Chunks are ephemeral; once embedded they become StoredPoints.
type Chunk struct {
	Text string
	Meta ChunkMeta
}

// StoredPoint is the persisted unit in the vector store. It is immutable
// after insert; re-ingestion is rejected by dedup, never merged.
type StoredPoint struct {
	ID     string // time-sortable unique id, assigned at write time
	Vector []float32
	Text   string
	Meta   ChunkMeta
}

// RetrievalHit is produced per query and lives for one query's processing.
type RetrievalHit struct {
	ID    string
	Text  string
	Score float32
	Meta  ChunkMeta
}

// SourceAttribution maps a model-declared reference index back to the
// retrieved chunk it names. It is persisted only as a snapshot inside the
// chat-history record.
type SourceAttribution struct {
	Header   string `json:"header" bson:"header"`
	Page     int    `json:"page" bson:"page"`
	Filename string `json:"filename" bson:"filename"`
	Text     string `json:"text" bson:"text"`
	Ordinal  int    `json:"chunkno" bson:"chunkno"`
}

// IngestOutcome is the final disposition of one ingestion attempt.
type IngestOutcome string

const (
	OutcomeCommittedBoth        IngestOutcome = "committed_both"
	OutcomeCommittedDurableOnly IngestOutcome = "committed_durable_only"
	OutcomeCommittedFastOnly    IngestOutcome = "committed_fast_only"
	OutcomeRejectedDuplicate    IngestOutcome = "rejected_duplicate"
	OutcomeRejectedEmpty        IngestOutcome = "rejected_empty"
	OutcomeFailed               IngestOutcome = "failed"
)

// Committed reports whether the outcome wrote to at least one tier.
func (o IngestOutcome) Committed() bool {
	switch o {
	case OutcomeCommittedBoth, OutcomeCommittedDurableOnly, OutcomeCommittedFastOnly:
		return true
	}
	return false
}
