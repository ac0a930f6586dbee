package domain

import "time"

const (
	StatusResized      = "resized"
	StatusWithinBounds = "within_bounds"
	StatusFailed       = "failed"
	StatusUnsupported  = "unsupported"
)

// FileResult is one ledger row: what happened to a single input file.
type FileResult struct {
	RunID      string
	InputPath  string
	OutputPath string
	Format     Format
	Source     Dimensions
	Target     Dimensions
	Status     string
	Error      string
	Bytes      int
	CreatedAt  time.Time
}
