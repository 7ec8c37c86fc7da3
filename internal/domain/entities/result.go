package entities

import "time"

// ProvisionResult is the outcome of ensuring one bundle is present
type ProvisionResult struct {
	RunID       string
	Bundle      string
	Fetched     bool // false when the local archive already matched its fingerprint
	Extracted   bool
	Entries     []ArchiveEntry
	Fingerprint string
	Bytes       int64
	Duration    time.Duration
}

// PackResult is the outcome of packing a bundle archive
type PackResult struct {
	Bundle      string
	Path        string
	Fingerprint string
	Algorithm   DigestAlgorithm
	Entries     []ArchiveEntry
}
