// Package entities defines the bundle, archive and provisioning models.
package entities

// BundleDescriptor describes where a data bundle lives locally, where it is
// fetched from and the fingerprint it must carry.
//
// RemoteURL and Fingerprint are fixed when the manifest is loaded. LocalPath
// is only ever written by the provisioner.
//
// A PlainFile bundle is placed at LocalPath as fetched and never unpacked.
// Only such a bundle may leave Fingerprint empty, in which case an existing
// LocalPath is taken as satisfied.
type BundleDescriptor struct {
	Name        string
	Version     string
	Description string
	LocalPath   string
	RemoteURL   string
	Fingerprint string // lower-case hex digest of the whole archive file
	Algorithm   DigestAlgorithm
	ExtractRoot string
	Signature   BundleSignature
	Files       []string // paths relative to ExtractRoot the bundle must provide
	PlainFile   bool
}

// BundleSignature represents optional detached OpenPGP signature settings
type BundleSignature struct {
	URL         string
	KeyringPath string
}

// Signed reports whether a detached signature must be checked before unpacking
func (d *BundleDescriptor) Signed() bool {
	return d.Signature.URL != ""
}

// ExistenceOnly reports whether presence of LocalPath is the only check
func (d *BundleDescriptor) ExistenceOnly() bool {
	return d.Fingerprint == ""
}
