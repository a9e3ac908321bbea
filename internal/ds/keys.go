package ds

import "strings"

// KeySeparator joins a backend and a file name into a file key.
const KeySeparator = ":"

// FileKey derives the storage key for a file: backend + ":" + ref.Name.
// The same name can coexist in different backends. A malformed pair fails
// with *InvalidKeyError instead of producing a colliding key.
func FileKey(backend Backend, ref FileRef) (string, error) {
	if err := ValidateFileRef(backend, ref); err != nil {
		return "", err
	}
	return string(backend) + KeySeparator + ref.Name, nil
}

// ValidateFileRef checks that backend is known and ref.Name is a single,
// separator-free path segment.
func ValidateFileRef(backend Backend, ref FileRef) error {
	if !backend.Valid() {
		return &InvalidKeyError{Backend: backend, Name: ref.Name, Reason: "unknown backend"}
	}
	if reason := segmentProblem(ref.Name); reason != "" {
		return &InvalidKeyError{Backend: backend, Name: ref.Name, Reason: reason}
	}
	return nil
}

// ValidateFingerprint checks that a fingerprint can be used as a record key.
func ValidateFingerprint(fingerprint string) error {
	if reason := segmentProblem(fingerprint); reason != "" {
		return &InvalidKeyError{Name: fingerprint, Reason: reason}
	}
	return nil
}

// DocMetaPath is the display path of a document-metadata record.
func DocMetaPath(fingerprint string) string {
	return "/" + fingerprint + ".json"
}

// segmentProblem returns why s is not usable as a key segment, or "".
func segmentProblem(s string) string {
	switch {
	case s == "":
		return "empty name"
	case s == "." || s == "..":
		return "relative path segment"
	case strings.ContainsAny(s, "/\\"):
		return "contains a path separator"
	case strings.Contains(s, KeySeparator):
		return "contains the key separator"
	case strings.ContainsRune(s, 0):
		return "contains a NUL byte"
	}
	return ""
}
