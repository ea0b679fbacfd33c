package linematch

import "errors"

var (
	// ErrCorpusRead reports that the corpus source could not be opened or read.
	ErrCorpusRead = errors.New("corpus unreadable")

	// ErrCorpusDecode reports corpus content that is not valid text.
	ErrCorpusDecode = errors.New("corpus contains invalid text")

	// ErrOversizedQuery reports a request line exceeding the configured bound.
	ErrOversizedQuery = errors.New("query exceeds maximum length")
)
