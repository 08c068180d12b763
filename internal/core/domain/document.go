package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// DocumentMetadata is the retrieval-time metadata supplied at ingestion.
type DocumentMetadata struct {
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Category    string     `json:"category,omitempty"`
	Agency      string     `json:"agency,omitempty"`
	SourceType  string     `json:"source_type,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type Document struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Category    string         `json:"category,omitempty"`
	Agency      string         `json:"agency,omitempty"`
	SourceType  string         `json:"source_type,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	StoragePath string         `json:"storage_path"`
	ChunkCount  int            `json:"chunk_count"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (d *Document) Metadata() DocumentMetadata {
	return DocumentMetadata{
		Source:      d.Source,
		Title:       d.Title,
		Category:    d.Category,
		Agency:      d.Agency,
		SourceType:  d.SourceType,
		PublishedAt: d.PublishedAt,
	}
}

// Chunk is the unit of retrieval. EnrichedText is what gets embedded,
// OriginalText is what gets displayed and cited.
type Chunk struct {
	ID             string `json:"id"`
	DocumentID     string `json:"document_id"`
	PositionIndex  int    `json:"position_index"`
	OriginalText   string `json:"original_text"`
	EnrichedText   string `json:"enriched_text"`
	ContextSummary string `json:"context_summary,omitempty"`
	TokenCount     int    `json:"token_count"`
}

func (c Chunk) Enriched() bool {
	return c.ContextSummary != ""
}

// TextWindow is a raw span produced by the splitter before enrichment.
type TextWindow struct {
	Position   int    `json:"position"`
	Text       string `json:"text"`
	StartRune  int    `json:"start_rune"`
	EndRune    int    `json:"end_rune"`
	TokenCount int    `json:"token_count"`
}

const (
	ContextOpenMarker  = "<context>"
	ContextCloseMarker = "</context>"
)

// BuildEnrichedText prefixes the window with its generated context summary.
// An empty summary yields the window unchanged.
func BuildEnrichedText(summary, original string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return original
	}
	var b strings.Builder
	b.Grow(len(summary) + len(original) + len(ContextOpenMarker) + len(ContextCloseMarker) + 3)
	b.WriteString(ContextOpenMarker)
	b.WriteByte('\n')
	b.WriteString(summary)
	b.WriteByte('\n')
	b.WriteString(ContextCloseMarker)
	b.WriteByte('\n')
	b.WriteString(original)
	return b.String()
}

// IngestEvent is published once a document has been uploaded and awaits processing.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}
