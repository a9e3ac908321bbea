package encryption

import (
	"bytes"
	"fmt"
	"io"

	"docstore-go/internal/ds"
)

// SealBytes seals data in memory.
func SealBytes(e ds.Encryptor, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := e.Seal(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// OpenBytes reverses SealBytes.
func OpenBytes(dec ds.DecryptionContext, sealed []byte) ([]byte, error) {
	r, err := dec.Open(bytes.NewReader(sealed))
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	return data, nil
}
