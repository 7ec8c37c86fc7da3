package gateways

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/DecBayComp/tramway-tour/internal/domain/interfaces"
)

// Packager builds bundle archives from the files a bundle provides
type Packager struct {
	digester *checksumVerifier
	logger   interfaces.Logger
}

// NewPackager creates a new packager
func NewPackager(logger interfaces.Logger) *Packager {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Packager{
		digester: NewChecksumVerifier(),
		logger:   logger,
	}
}

// PackBundle writes desc.Files, taken relative to projectDir, into
// desc.LocalPath and returns the fingerprint of the new archive.
// The codec is chosen from the LocalPath extension.
func (p *Packager) PackBundle(ctx context.Context, desc *entities.BundleDescriptor, projectDir string) (*entities.PackResult, error) {
	if desc.PlainFile {
		return nil, fmt.Errorf("bundle %s is a plain file, not an archive", desc.Name)
	}
	if len(desc.Files) == 0 {
		return nil, fmt.Errorf("bundle %s lists no files to pack", desc.Name)
	}

	c, err := compressionFromName(desc.LocalPath)
	if err != nil {
		return nil, err
	}

	algorithm := desc.Algorithm
	if algorithm == "" {
		algorithm = entities.DigestSHA256
	}

	root, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(desc.LocalPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write next to the destination so the final rename stays on one file system
	tmp, err := os.CreateTemp(filepath.Dir(desc.LocalPath), "."+filepath.Base(desc.LocalPath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	//nolint:errcheck // Best-effort cleanup; the rename below consumes tmpPath on success
	defer os.Remove(tmpPath)

	packed, err := p.writeArchive(ctx, tmp, c, root, desc.Files)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close archive: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmpPath, desc.LocalPath); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	fingerprint, err := p.digester.CalculateChecksum(desc.LocalPath, algorithm)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Packed bundle",
		interfaces.F("bundle", desc.Name),
		interfaces.F("path", desc.LocalPath),
		interfaces.F("entries", len(packed)),
		interfaces.F("algorithm", string(algorithm)),
		interfaces.F("fingerprint", fingerprint),
	)

	return &entities.PackResult{
		Bundle:      desc.Name,
		Path:        desc.LocalPath,
		Fingerprint: fingerprint,
		Algorithm:   algorithm,
		Entries:     packed,
	}, nil
}

// writeArchive streams the tar archive of files into w
func (p *Packager) writeArchive(ctx context.Context, w io.Writer, c compression, root string, files []string) ([]entities.ArchiveEntry, error) {
	cw, err := newCompressor(c, w)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(cw)

	var packed []entities.ArchiveEntry
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source, err := resolveWithinRoot(root, name)
		if err != nil {
			return nil, fmt.Errorf("refusing to pack %s: %w", name, err)
		}

		err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			entry, err := p.addToArchive(tw, root, path, d)
			if err != nil {
				return err
			}
			packed = append(packed, entry)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to pack %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish %s stream: %w", c, err)
	}
	return packed, nil
}

// addToArchive writes one file, directory or symlink with a project-relative name
func (p *Packager) addToArchive(tw *tar.Writer, root, path string, d fs.DirEntry) (entities.ArchiveEntry, error) {
	info, err := d.Info()
	if err != nil {
		return entities.ArchiveEntry{}, err
	}

	var linkTarget string
	if info.Mode()&os.ModeSymlink != 0 {
		linkTarget, err = os.Readlink(path)
		if err != nil {
			return entities.ArchiveEntry{}, fmt.Errorf("failed to read symlink: %w", err)
		}
	}

	header, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return entities.ArchiveEntry{}, fmt.Errorf("failed to create tar header: %w", err)
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return entities.ArchiveEntry{}, fmt.Errorf("failed to get relative path: %w", err)
	}
	header.Name = filepath.ToSlash(relPath)
	if info.IsDir() {
		header.Name += "/"
	}
	// Ownership is meaningless once the bundle leaves this machine
	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""

	if err := tw.WriteHeader(header); err != nil {
		return entities.ArchiveEntry{}, fmt.Errorf("failed to write tar header: %w", err)
	}

	if info.Mode().IsRegular() {
		//nolint:gosec // G304: path was resolved inside the project directory
		file, err := os.Open(path)
		if err != nil {
			return entities.ArchiveEntry{}, fmt.Errorf("failed to open file: %w", err)
		}
		_, err = io.Copy(tw, file)
		_ = file.Close()
		if err != nil {
			return entities.ArchiveEntry{}, fmt.Errorf("failed to write file to tar: %w", err)
		}
	}

	return toEntry(header), nil
}
