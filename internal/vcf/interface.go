package vcf

// RecordSource is the interface for readers that yield raw records in chunks.
// Both the tab-separated reader and the VCF reader implement this interface.
type RecordSource interface {
	// NextChunk reads up to n records.
	// Returns nil, nil when there are no more records.
	NextChunk(n int) ([]Record, error)

	// Close closes the reader and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}
