package rag

import "errors"

// Failure kinds shared by the embedding and vector index layers. Callers
// test for them with errors.Is; the wrapped message carries the detail.
var (
	// ErrConnection reports that the vector store or an embedding backend
	// was unreachable or answered with a non-success status.
	ErrConnection = errors.New("connection failure")

	// ErrEmbedding reports that the model could not produce vectors.
	ErrEmbedding = errors.New("embedding failure")

	// ErrInputLengthMismatch reports batch inputs of differing lengths.
	ErrInputLengthMismatch = errors.New("input length mismatch")

	// ErrDimensionMismatch reports a vector whose length differs from the
	// collection or model dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrParse reports a response that could not be decoded.
	ErrParse = errors.New("parse failure")

	// ErrNotFound reports a reference to a collection that does not exist.
	ErrNotFound = errors.New("not found")
)
