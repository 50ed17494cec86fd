package storage

import "time"

// Chunk levels. Document-level chunks come from CSV/TSV tables, section and
// chunk levels come from markdown/text splitting.
const (
	LevelDocument = "document"
	LevelSection  = "section"
	LevelChunk    = "chunk"
)

// MetaFilePath is the metadata key every chunk must carry: the path of the
// file the chunk was extracted from.
const MetaFilePath = "file_path"

// Document represents an ingested source file.
type Document struct {
	ID        string // UUID
	FilePath  string // Path relative to the docs root
	Title     string // Extracted title
	Hash      string // SHA256 hex string of file content
	UpdatedAt time.Time
}

// ChunkRecord is the persisted unit of retrievable text. Records are created
// once at ingest time and are immutable afterwards. Chunk IDs are globally
// unique and the Ordinal column gives the total corpus-wide chunk order used
// for neighbor expansion.
type ChunkRecord struct {
	ID          string // UUID (same as the vector store point ID)
	DocID       string // UUID (foreign key to documents.id)
	Ordinal     int64  // Position in the global linear chunk order
	Level       string // document | section | chunk
	HeadingPath string // Format: "# Heading1 > ## Heading2"
	PageNo      *int   // Page number, when the source format has pages
	Title       string // Owning document title
	FilePath    string // Owning document path
	Text        string // Chunk text content
	Meta        map[string]any
}
