package gateways

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces"
)

// DefaultMaxEntrySize caps a single extracted file (decompression bomb guard)
const DefaultMaxEntrySize int64 = 1 << 30

// Extractor unpacks tar archives (plain, gzip, bzip2, xz or zstd) while
// keeping every entry inside the extraction root.
//
// Extraction runs in two passes over the archive. The first pass validates
// every entry and writes nothing; the second pass writes. A failure in the
// second pass removes what that pass created.
type Extractor struct {
	maxEntrySize int64
	logger       interfaces.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(logger interfaces.Logger) *Extractor {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Extractor{
		maxEntrySize: DefaultMaxEntrySize,
		logger:       logger,
	}
}

// SetMaxEntrySize changes the per-entry size limit
func (e *Extractor) SetMaxEntrySize(limit int64) {
	if limit > 0 {
		e.maxEntrySize = limit
	}
}

// List returns the entries of an archive without extracting anything
func (e *Extractor) List(ctx context.Context, archivePath string) ([]entities.ArchiveEntry, error) {
	var listed []entities.ArchiveEntry
	err := e.walk(ctx, archivePath, func(header *tar.Header, _ io.Reader) error {
		listed = append(listed, toEntry(header))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listed, nil
}

// Extract unpacks archivePath under root.
// Any entry resolving outside root fails the whole extraction with
// *entities.PathTraversalError before anything is written.
func (e *Extractor) Extract(ctx context.Context, archivePath, root string) ([]entities.ArchiveEntry, error) {
	canonRoot, err := canonicalRoot(root)
	if err != nil {
		return nil, err
	}

	// First pass: validate every entry
	var planned []entities.ArchiveEntry
	symlinks := make(map[string]bool)
	err = e.walk(ctx, archivePath, func(header *tar.Header, _ io.Reader) error {
		if err := e.validateEntry(canonRoot, header); err != nil {
			return err
		}
		if header.Typeflag == tar.TypeSymlink {
			symlinks[entryPath(header.Name)] = true
		}
		planned = append(planned, toEntry(header))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := checkArchiveSymlinks(canonRoot, planned, symlinks); err != nil {
		return nil, err
	}

	// Second pass: write
	w := &entryWriter{root: canonRoot}
	var links []*tar.Header
	err = e.walk(ctx, archivePath, func(header *tar.Header, body io.Reader) error {
		switch header.Typeflag {
		case tar.TypeSymlink, tar.TypeLink:
			// Links are created once every regular file exists
			links = append(links, header)
			return nil
		default:
			return e.writeEntry(w, header, body)
		}
	})
	if err == nil {
		for _, header := range links {
			if err = w.link(header); err != nil {
				break
			}
		}
	}
	if err != nil {
		w.rollback()
		return nil, err
	}

	e.logger.Info("Extracted archive",
		interfaces.F("archive", filepath.Base(archivePath)),
		interfaces.F("root", canonRoot),
		interfaces.F("entries", len(planned)),
	)
	return planned, nil
}

// walk opens the archive and calls fn for every header
func (e *Extractor) walk(ctx context.Context, archivePath string, fn func(*tar.Header, io.Reader) error) error {
	//nolint:gosec // G304: archivePath is the provisioned bundle
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	stream, _, err := newDecompressor(file)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on decompressor
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		// ErrInsecurePath comes with a usable header; the path policy decides
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("tar read error: %w", err)
		}

		if err := fn(header, tr); err != nil {
			return err
		}
	}
}

// validateEntry applies the path policy to one header without touching the disk
func (e *Extractor) validateEntry(root string, header *tar.Header) error {
	target, err := resolveWithinRoot(root, header.Name)
	if err != nil {
		return err
	}
	if err := checkResolvedParent(root, header.Name, target); err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeSymlink:
		linkname := filepath.FromSlash(header.Linkname)
		if strings.HasPrefix(header.Linkname, "/") || filepath.IsAbs(linkname) {
			return &entities.PathTraversalError{Entry: header.Name, Target: header.Linkname, Root: root}
		}
		if _, err := resolveWithinRoot(root, filepath.Join(filepath.Dir(filepath.FromSlash(header.Name)), linkname)); err != nil {
			return &entities.PathTraversalError{Entry: header.Name, Target: header.Linkname, Root: root}
		}
	case tar.TypeLink:
		if _, err := resolveWithinRoot(root, header.Linkname); err != nil {
			return &entities.PathTraversalError{Entry: header.Name, Target: header.Linkname, Root: root}
		}
	case tar.TypeReg:
		if header.Size > e.maxEntrySize {
			return fmt.Errorf("archive entry %s is %d bytes, above the %d byte limit", header.Name, header.Size, e.maxEntrySize)
		}
	}
	return nil
}

func (e *Extractor) writeEntry(w *entryWriter, header *tar.Header, body io.Reader) error {
	target, err := resolveWithinRoot(w.root, header.Name)
	if err != nil {
		return err
	}
	if err := checkResolvedParent(w.root, header.Name, target); err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return w.mkdirAll(target)
	case tar.TypeReg:
		return w.writeFile(target, header, body, e.maxEntrySize)
	default:
		e.logger.Warn("Ignoring unsupported archive entry",
			interfaces.F("entry", header.Name),
			interfaces.F("type", string(header.Typeflag)),
		)
		return nil
	}
}

// entryWriter writes entries under root and remembers what it created
type entryWriter struct {
	root    string
	created []string
}

func (w *entryWriter) mkdirAll(dir string) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Lstat(d); err == nil || !isWithin(w.root, d) || d == w.root {
			break
		}
		missing = append(missing, d)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		w.created = append(w.created, missing[i])
	}
	return nil
}

func (w *entryWriter) writeFile(target string, header *tar.Header, body io.Reader, limit int64) error {
	if header.Size > limit {
		return fmt.Errorf("archive entry %s is %d bytes, above the %d byte limit", header.Name, header.Size, limit)
	}
	if err := w.mkdirAll(filepath.Dir(target)); err != nil {
		return err
	}

	// Replace rather than truncate: an existing symlink or hard link must
	// not carry the new content to another path.
	existed := false
	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("cannot replace directory %s with a file", target)
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", target, err)
		}
		existed = info.Mode()&os.ModeSymlink == 0
	}

	//nolint:gosec // G304: target was checked against the extraction root
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, os.FileMode(header.Mode).Perm()|0600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if !existed {
		w.created = append(w.created, target)
	}

	if _, err := io.Copy(out, io.LimitReader(body, header.Size)); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

func (w *entryWriter) link(header *tar.Header) error {
	target, err := resolveWithinRoot(w.root, header.Name)
	if err != nil {
		return err
	}
	if err := checkResolvedParent(w.root, header.Name, target); err != nil {
		return err
	}
	if err := w.mkdirAll(filepath.Dir(target)); err != nil {
		return err
	}

	if info, err := os.Lstat(target); err == nil {
		if info.IsDir() {
			return fmt.Errorf("cannot replace directory %s with a link", target)
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", target, err)
		}
	}

	if header.Typeflag == tar.TypeLink {
		source, err := resolveWithinRoot(w.root, header.Linkname)
		if err != nil {
			return err
		}
		if err := followWithinRoot(w.root, header.Name, w.root, header.Linkname); err != nil {
			return err
		}
		// os.Link copies a symlink as is, relative target included
		if info, err := os.Lstat(source); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return &entities.PathTraversalError{Entry: header.Name, Target: header.Linkname, Root: w.root}
		}
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("failed to create hard link %s: %w", header.Name, err)
		}
	} else {
		dir, err := filepath.EvalSymlinks(filepath.Dir(target))
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", filepath.Dir(target), err)
		}
		if err := followWithinRoot(w.root, header.Name, dir, header.Linkname); err != nil {
			return err
		}
		if err := os.Symlink(filepath.FromSlash(header.Linkname), target); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", header.Name, err)
		}
	}

	w.created = append(w.created, target)
	return nil
}

// rollback removes created paths, newest first. Non-empty directories stay.
func (w *entryWriter) rollback() {
	for i := len(w.created) - 1; i >= 0; i-- {
		_ = os.Remove(w.created[i])
	}
	w.created = nil
}

// canonicalRoot returns the absolute, symlink-free form of root, creating it if needed
func canonicalRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve extraction root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0750); err != nil {
		return "", fmt.Errorf("failed to create extraction root: %w", err)
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve extraction root: %w", err)
	}
	return canonRoot, nil
}

// resolveWithinRoot joins name to root and checks root is a path-aware
// ancestor of the result. Absolute names are refused outright.
func resolveWithinRoot(root, name string) (string, error) {
	native := filepath.FromSlash(name)
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(native) || filepath.VolumeName(native) != "" {
		return "", &entities.PathTraversalError{Entry: name, Root: root}
	}

	target, err := filepath.Abs(filepath.Join(root, native))
	if err != nil {
		return "", fmt.Errorf("failed to resolve entry %s: %w", name, err)
	}
	if !isWithin(root, target) {
		return "", &entities.PathTraversalError{Entry: name, Target: target, Root: root}
	}
	return target, nil
}

// isWithin reports whether target equals root or lies below it.
// Comparison is by path components, so /data-evil is not inside /data.
func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// checkResolvedParent resolves symlinks on the deepest existing ancestor of
// target and checks it is still inside root.
func checkResolvedParent(root, name, target string) error {
	if target == root {
		return nil
	}

	dir := filepath.Dir(target)
	for dir != root {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if !isWithin(root, resolved) {
		return &entities.PathTraversalError{Entry: name, Target: resolved, Root: root}
	}
	return nil
}

// followWithinRoot walks rel from base one component at a time, the way the
// kernel would, resolving symlinks already on disk. Leaving root at any step
// is a traversal.
func followWithinRoot(root, entry, base, rel string) error {
	cur := base
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
			if info, err := os.Lstat(cur); err == nil && info.Mode()&os.ModeSymlink != 0 {
				resolved, err := filepath.EvalSymlinks(cur)
				if err != nil {
					return &entities.PathTraversalError{Entry: entry, Target: rel, Root: root}
				}
				cur = resolved
			}
		}
		if !isWithin(root, cur) {
			return &entities.PathTraversalError{Entry: entry, Target: cur, Root: root}
		}
	}
	return nil
}

// checkArchiveSymlinks refuses entries whose path or link target goes through
// a symlink declared by the same archive, and hard links to such a symlink.
func checkArchiveSymlinks(root string, entries []entities.ArchiveEntry, symlinks map[string]bool) error {
	if len(symlinks) == 0 {
		return nil
	}
	for _, entry := range entries {
		if throughSymlink(symlinks, entryPath(entry.Name)) {
			return &entities.PathTraversalError{Entry: entry.Name, Root: root}
		}

		var target string
		switch entry.Type {
		case entities.EntrySymlink:
			target = path.Dir(entryPath(entry.Name)) + "/" + filepath.ToSlash(entry.LinkTarget)
		case entities.EntryLink:
			target = filepath.ToSlash(entry.LinkTarget)
			if symlinks[entryPath(target)] {
				return &entities.PathTraversalError{Entry: entry.Name, Target: entry.LinkTarget, Root: root}
			}
		default:
			continue
		}
		if throughSymlink(symlinks, target) {
			return &entities.PathTraversalError{Entry: entry.Name, Target: entry.LinkTarget, Root: root}
		}
	}
	return nil
}

// throughSymlink reports whether any directory component of p, read left to
// right without cleaning, is one of symlinks. The last component may be one.
func throughSymlink(symlinks map[string]bool, p string) bool {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	var stack []string
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		stack = append(stack, part)
		if i < len(parts)-1 && symlinks[strings.Join(stack, "/")] {
			return true
		}
	}
	return false
}

// entryPath normalizes an entry name to a clean slash path
func entryPath(name string) string {
	return path.Clean(filepath.ToSlash(name))
}

func toEntry(header *tar.Header) entities.ArchiveEntry {
	entry := entities.ArchiveEntry{
		Name: header.Name,
		Size: header.Size,
		Mode: header.Mode,
	}
	switch header.Typeflag {
	case tar.TypeDir:
		entry.Type = entities.EntryDir
	case tar.TypeReg:
		entry.Type = entities.EntryFile
	case tar.TypeSymlink:
		entry.Type = entities.EntrySymlink
		entry.LinkTarget = header.Linkname
	case tar.TypeLink:
		entry.Type = entities.EntryLink
		entry.LinkTarget = header.Linkname
	default:
		entry.Type = entities.EntryOther
	}
	return entry
}
