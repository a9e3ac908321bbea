package app

import "time"

// Operation tracks the CLI command an app was opened for. Its outcome is
// logged when the app closes.
type Operation struct {
	Name      string
	Status    string // "success" or "error"
	StartedAt time.Time
}

// NewOperation creates an operation that has not failed yet.
func NewOperation(name string) *Operation {
	return &Operation{
		Name:      name,
		Status:    "success",
		StartedAt: time.Now(),
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Failed returns true if any step of the operation failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns how long the operation has been running.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.StartedAt).Round(time.Millisecond)
}
