package testutil

import (
	"docstore-go/internal/ds"
	"docstore-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() ds.Encryptor {
	return encryption.NewTestEncryptor()
}
