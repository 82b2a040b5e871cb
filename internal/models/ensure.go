package models

// EnsureStatus is the outcome of ensuring a combined artifact for one request.
type EnsureStatus string

const (
	// EnsureHit means an up-to-date combined artifact already existed.
	EnsureHit EnsureStatus = "hit"
	// EnsureGenerated means a fresh combined artifact was produced.
	EnsureGenerated EnsureStatus = "generated"
	// EnsureSkipped means the request has no valid inputs to merge.
	EnsureSkipped EnsureStatus = "skipped"
	// EnsureFailed means generation was attempted and did not succeed.
	EnsureFailed EnsureStatus = "failed"
)

// EnsureResult reports what happened for one request. Artifact is set for hit
// and generated outcomes only.
type EnsureResult struct {
	Status     EnsureStatus
	Artifact   *Document
	SkipReason string
	Err        error
}

// Exists reports whether a combined artifact is available after the call.
func (r EnsureResult) Exists() bool {
	return r.Artifact != nil
}
