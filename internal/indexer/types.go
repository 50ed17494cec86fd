package indexer

// Chunk is a unit of text produced by chunking one document.
type Chunk struct {
	Index       int    // Chunk index within the document (starts at 0)
	HeadingPath string // Format: "# Heading1 > ## Heading2"
	Text        string // Chunk text content
	PageNo      *int   // Page number when the source format has pages
}
