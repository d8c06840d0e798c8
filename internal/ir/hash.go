package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the algorithm
// to change without colliding with stored values.
const (
	DomainFields = "strata/fields/v1"
	DomainRow    = "strata/row/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content hash of a record's fields.
// Staging contexts compare fingerprints to decide whether a record still
// differs from the value its parent holds.
func Fingerprint(fields Object) (string, error) {
	canonical, err := MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainFields, canonical), nil
}

// RowDigest computes a content hash of a full row (identity, kind and fields).
// Seq is excluded: it orders rows, it does not describe them.
func RowDigest(r Row) (string, error) {
	obj := Object{
		"id":     String(r.ID),
		"kind":   String(r.Kind),
		"fields": r.Fields,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("row digest: %w", err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when the fields are known to be valid.
func MustFingerprint(fields Object) string {
	fp, err := Fingerprint(fields)
	if err != nil {
		panic(err)
	}
	return fp
}
