package simulation

import "errors"

var (
	// ErrConfiguration is returned for an unknown arena mode, or when geometry
	// is needed before a Field has been configured.
	ErrConfiguration = errors.New("configuration error")

	// ErrIngestion is returned for malformed host records: counts beyond
	// capacity, non-finite physical quantities or unsupported shapes.
	// Rejected records never change state.
	ErrIngestion = errors.New("ingestion error")
)
