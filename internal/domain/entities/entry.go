package entities

// EntryType classifies an archive entry
type EntryType string

// Entry types handled by the extractor
const (
	EntryDir     EntryType = "dir"
	EntryFile    EntryType = "file"
	EntrySymlink EntryType = "symlink"
	EntryLink    EntryType = "hardlink"
	EntryOther   EntryType = "other"
)

// ArchiveEntry represents one record inside a bundle archive.
// Entries are produced while unpacking and are never persisted.
type ArchiveEntry struct {
	Name       string
	Type       EntryType
	Size       int64
	Mode       int64
	LinkTarget string // symlink or hard link target, empty otherwise
}
