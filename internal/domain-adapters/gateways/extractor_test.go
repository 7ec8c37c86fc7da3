package gateways

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

type testEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

// writeTestArchive writes entries as a tar archive with the given compression
func writeTestArchive(t *testing.T, path string, c compression, entries []testEntry) {
	t.Helper()

	//nolint:gosec // G304: test archive path
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer f.Close()

	cw, err := newCompressor(c, f)
	if err != nil {
		t.Fatalf("newCompressor(%s) error = %v", c, err)
	}

	tw := tar.NewWriter(cw)
	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		header := &tar.Header{
			Name:     e.name,
			Typeflag: typeflag,
			Linkname: e.linkname,
			Mode:     0644,
		}
		if typeflag == tar.TypeReg {
			header.Size = int64(len(e.body))
		}
		if typeflag == tar.TypeDir {
			header.Mode = 0755
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("WriteHeader(%s) error = %v", e.name, err)
		}
		if typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("Write(%s) error = %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close error = %v", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("compressor close error = %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	//nolint:gosec // G304: test path
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestExtractor_Extract_Compressions(t *testing.T) {
	entries := []testEntry{
		{name: "data/", typeflag: tar.TypeDir},
		{name: "data/demo1.txt", body: "n\tx\ty\tt\n1\t0.1\t0.2\t0.04\n"},
		{name: "notebooks/trajectories.webm", body: "webm"},
	}

	tests := []struct {
		name string
		c    compression
		file string
	}{
		{"plain tar", compressionNone, "bundle.tar"},
		{"gzip", compressionGzip, "bundle.tar.gz"},
		{"bzip2", compressionBzip2, "bundle.tar.bz2"},
		{"xz", compressionXz, "bundle.tar.xz"},
		{"zstd", compressionZstd, "bundle.tar.zst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			archive := filepath.Join(tmpDir, tt.file)
			writeTestArchive(t, archive, tt.c, entries)

			root := filepath.Join(tmpDir, "root")
			got, err := NewExtractor(nil).Extract(context.Background(), archive, root)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(got) != len(entries) {
				t.Errorf("Extract() returned %d entries, want %d", len(got), len(entries))
			}

			if body := readFile(t, filepath.Join(root, "data", "demo1.txt")); body != entries[1].body {
				t.Errorf("demo1.txt = %q, want %q", body, entries[1].body)
			}
			if body := readFile(t, filepath.Join(root, "notebooks", "trajectories.webm")); body != "webm" {
				t.Errorf("trajectories.webm = %q, want webm", body)
			}
		})
	}
}

func TestExtractor_Extract_PathTraversal(t *testing.T) {
	tests := []struct {
		name    string
		entries []testEntry
	}{
		{
			name: "dot-dot entry",
			entries: []testEntry{
				{name: "data/ok.txt", body: "ok"},
				{name: "../../etc/passwd", body: "root:x:0:0"},
			},
		},
		{
			name: "absolute entry",
			entries: []testEntry{
				{name: "data/ok.txt", body: "ok"},
				{name: "/etc/passwd", body: "root:x:0:0"},
			},
		},
		{
			name: "dot-dot hidden in the middle",
			entries: []testEntry{
				{name: "data/ok.txt", body: "ok"},
				{name: "data/../../escape.txt", body: "escape"},
			},
		},
		{
			name: "symlink pointing outside",
			entries: []testEntry{
				{name: "data/ok.txt", body: "ok"},
				{name: "data/link", typeflag: tar.TypeSymlink, linkname: "../../outside"},
			},
		},
		{
			name: "absolute symlink",
			entries: []testEntry{
				{name: "data/ok.txt", body: "ok"},
				{name: "data/link", typeflag: tar.TypeSymlink, linkname: "/etc"},
			},
		},
		{
			name: "hard link outside",
			entries: []testEntry{
				{name: "data/ok.txt", body: "ok"},
				{name: "data/hard", typeflag: tar.TypeLink, linkname: "../outside.txt"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			archive := filepath.Join(tmpDir, "evil.tar.gz")
			writeTestArchive(t, archive, compressionGzip, tt.entries)

			root := filepath.Join(tmpDir, "a", "root")
			_, err := NewExtractor(nil).Extract(context.Background(), archive, root)
			if err == nil {
				t.Fatal("Extract() should fail on a path traversal entry")
			}

			var traversal *entities.PathTraversalError
			if !errors.As(err, &traversal) {
				t.Fatalf("Extract() error = %T (%v), want *entities.PathTraversalError", err, err)
			}

			// Validation happens before any write, so the benign entry is absent too
			if _, err := os.Stat(filepath.Join(root, "data", "ok.txt")); !os.IsNotExist(err) {
				t.Error("no entry should be written when the archive contains a traversal")
			}
			for _, outside := range []string{"escape.txt", "outside", "outside.txt", filepath.Join("etc", "passwd")} {
				if _, err := os.Lstat(filepath.Join(tmpDir, outside)); !os.IsNotExist(err) {
					t.Errorf("%s was created outside the extraction root", outside)
				}
			}
		})
	}
}

func TestExtractor_Extract_SiblingPrefix(t *testing.T) {
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "evil.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "../data-evil/payload.txt", body: "payload"},
	})

	root := filepath.Join(tmpDir, "data")
	_, err := NewExtractor(nil).Extract(context.Background(), archive, root)
	if !entities.IsPathTraversal(err) {
		t.Fatalf("Extract() error = %v, want path traversal", err)
	}

	// A naive string prefix check would accept this target
	target := filepath.Join(root, "..", "data-evil", "payload.txt")
	if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(root)) {
		t.Fatalf("test setup: %s should share the root's string prefix", target)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "data-evil")); !os.IsNotExist(err) {
		t.Error("sibling directory data-evil should not be created")
	}
}

func TestExtractor_Extract_ExistingSymlinkInRoot(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "root")
	outside := filepath.Join(tmpDir, "outside")
	if err := os.MkdirAll(root, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(outside, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "data")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	archive := filepath.Join(tmpDir, "bundle.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "data/demo1.txt", body: "redirected"},
	})

	_, err := NewExtractor(nil).Extract(context.Background(), archive, root)
	if !entities.IsPathTraversal(err) {
		t.Fatalf("Extract() error = %v, want path traversal", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "demo1.txt")); !os.IsNotExist(err) {
		t.Error("file was written through a symlink leaving the root")
	}
}

func TestExtractor_Extract_ReplacesSymlinkAtTarget(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "root")
	if err := os.MkdirAll(root, 0750); err != nil {
		t.Fatal(err)
	}
	victim := filepath.Join(tmpDir, "victim.txt")
	if err := os.WriteFile(victim, []byte("original"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(victim, filepath.Join(root, "demo1.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	archive := filepath.Join(tmpDir, "bundle.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "demo1.txt", body: "fresh"},
	})

	if _, err := NewExtractor(nil).Extract(context.Background(), archive, root); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := readFile(t, victim); got != "original" {
		t.Errorf("victim.txt = %q, extraction wrote through a symlink", got)
	}
	info, err := os.Lstat(filepath.Join(root, "demo1.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("demo1.txt should be a regular file after extraction")
	}
}

func TestExtractor_Extract_LinksInsideRoot(t *testing.T) {
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "bundle.tar.gz")
	writeTestArchive(t, archive, compressionGzip, []testEntry{
		{name: "data/latest", typeflag: tar.TypeSymlink, linkname: "Image_traj.txt"},
		{name: "data/Image_traj.txt", body: "traj"},
		{name: "data/copy.txt", typeflag: tar.TypeLink, linkname: "data/Image_traj.txt"},
	})

	root := filepath.Join(tmpDir, "root")
	if _, err := NewExtractor(nil).Extract(context.Background(), archive, root); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := readFile(t, filepath.Join(root, "data", "latest")); got != "traj" {
		t.Errorf("symlink content = %q, want traj", got)
	}
	if got := readFile(t, filepath.Join(root, "data", "copy.txt")); got != "traj" {
		t.Errorf("hard link content = %q, want traj", got)
	}
}

func TestExtractor_Extract_SymlinkChainEscape(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "root")
	secret := filepath.Join(tmpDir, "secret")
	if err := os.WriteFile(secret, []byte("outside"), 0600); err != nil {
		t.Fatal(err)
	}

	// s is "." on paper, but x/.. is the parent of root once x exists
	archive := filepath.Join(tmpDir, "chain.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "x", typeflag: tar.TypeSymlink, linkname: "."},
		{name: "s", typeflag: tar.TypeSymlink, linkname: "x/.."},
		{name: "h", typeflag: tar.TypeLink, linkname: "s/secret"},
	})

	_, err := NewExtractor(nil).Extract(context.Background(), archive, root)
	if !entities.IsPathTraversal(err) {
		t.Fatalf("Extract() error = %v, want path traversal", err)
	}
	for _, name := range []string{"x", "s", "h"} {
		if _, err := os.Lstat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not be created", name)
		}
	}
	if got := readFile(t, secret); got != "outside" {
		t.Errorf("secret = %q, want it untouched", got)
	}
}

func TestExtractor_Extract_LinkThroughArchiveSymlink(t *testing.T) {
	tests := []struct {
		name    string
		entries []testEntry
	}{
		{
			name: "hard link through symlink",
			entries: []testEntry{
				{name: "data/Image_loc.txt", body: "loc"},
				{name: "d", typeflag: tar.TypeSymlink, linkname: "data"},
				{name: "copy.txt", typeflag: tar.TypeLink, linkname: "d/Image_loc.txt"},
			},
		},
		{
			name: "hard link to symlink",
			entries: []testEntry{
				{name: "data/deep/up", typeflag: tar.TypeSymlink, linkname: "../Image_loc.txt"},
				{name: "data/Image_loc.txt", body: "loc"},
				{name: "up", typeflag: tar.TypeLink, linkname: "data/deep/up"},
			},
		},
		{
			name: "file below symlink",
			entries: []testEntry{
				{name: "d", typeflag: tar.TypeSymlink, linkname: "data"},
				{name: "d/demo1.txt", body: "demo"},
			},
		},
		{
			name: "symlink target through symlink",
			entries: []testEntry{
				{name: "a/b", typeflag: tar.TypeSymlink, linkname: "."},
				{name: "a/l", typeflag: tar.TypeSymlink, linkname: "b/../demo1.txt"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			archive := filepath.Join(tmpDir, "bundle.tar")
			writeTestArchive(t, archive, compressionNone, tt.entries)

			root := filepath.Join(tmpDir, "root")
			_, err := NewExtractor(nil).Extract(context.Background(), archive, root)
			if !entities.IsPathTraversal(err) {
				t.Fatalf("Extract() error = %v, want path traversal", err)
			}
			entries, err := os.ReadDir(root)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("root holds %d entries, want none", len(entries))
			}
		})
	}
}

func TestExtractor_Extract_LinkThroughExistingSymlink(t *testing.T) {
	tests := []struct {
		name  string
		entry testEntry
	}{
		{"hard link", testEntry{name: "h", typeflag: tar.TypeLink, linkname: "up/secret"}},
		{"symlink", testEntry{name: "l", typeflag: tar.TypeSymlink, linkname: "up/secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			root := filepath.Join(tmpDir, "root")
			if err := os.MkdirAll(root, 0750); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(tmpDir, "secret"), []byte("outside"), 0600); err != nil {
				t.Fatal(err)
			}
			if err := os.Symlink("..", filepath.Join(root, "up")); err != nil {
				t.Skipf("symlinks not supported: %v", err)
			}

			archive := filepath.Join(tmpDir, "bundle.tar")
			writeTestArchive(t, archive, compressionNone, []testEntry{tt.entry})

			_, err := NewExtractor(nil).Extract(context.Background(), archive, root)
			if !entities.IsPathTraversal(err) {
				t.Fatalf("Extract() error = %v, want path traversal", err)
			}
			if _, err := os.Lstat(filepath.Join(root, tt.entry.name)); !os.IsNotExist(err) {
				t.Errorf("%s should be rolled back", tt.entry.name)
			}
		})
	}
}

func TestExtractor_Extract_ReplacesHardLinkAtTarget(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "root")
	if err := os.MkdirAll(root, 0750); err != nil {
		t.Fatal(err)
	}
	victim := filepath.Join(tmpDir, "victim.txt")
	if err := os.WriteFile(victim, []byte("original"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(victim, filepath.Join(root, "demo1.txt")); err != nil {
		t.Skipf("hard links not supported: %v", err)
	}

	archive := filepath.Join(tmpDir, "bundle.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "demo1.txt", body: "fresh"},
	})

	if _, err := NewExtractor(nil).Extract(context.Background(), archive, root); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := readFile(t, victim); got != "original" {
		t.Errorf("victim.txt = %q, extraction wrote through a hard link", got)
	}
	if got := readFile(t, filepath.Join(root, "demo1.txt")); got != "fresh" {
		t.Errorf("demo1.txt = %q, want fresh", got)
	}
}

func TestThroughSymlink(t *testing.T) {
	symlinks := map[string]bool{"x": true, "data/latest": true}
	tests := []struct {
		path string
		want bool
	}{
		{"x", false},
		{"x/..", true},
		{"./x/../secret", true},
		{"data/latest", false},
		{"data/latest/", false},
		{"data/latest/a", true},
		{"data/../x/a", true},
		{"data/Image_traj.txt", false},
		{"xy/a", false},
	}
	for _, tt := range tests {
		if got := throughSymlink(symlinks, tt.path); got != tt.want {
			t.Errorf("throughSymlink(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExtractor_Extract_SizeLimit(t *testing.T) {
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "bomb.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "big.bin", body: strings.Repeat("0", 2048)},
	})

	extractor := NewExtractor(nil)
	extractor.SetMaxEntrySize(1024)

	root := filepath.Join(tmpDir, "root")
	_, err := extractor.Extract(context.Background(), archive, root)
	if err == nil {
		t.Fatal("Extract() should refuse entries above the size limit")
	}
	if entities.IsPathTraversal(err) {
		t.Error("size limit violation is not a path traversal")
	}
	if _, err := os.Stat(filepath.Join(root, "big.bin")); !os.IsNotExist(err) {
		t.Error("oversized entry should not be written")
	}
}

func TestExtractor_Extract_CorruptArchiveWritesNothing(t *testing.T) {
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "bundle.tar")
	writeTestArchive(t, archive, compressionNone, []testEntry{
		{name: "first.txt", body: strings.Repeat("a", 600)},
		{name: "second.txt", body: strings.Repeat("b", 600)},
	})

	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	// Cut the archive in the middle of the second entry
	if err := os.WriteFile(archive, data[:2048], 0600); err != nil {
		t.Fatal(err)
	}

	root := filepath.Join(tmpDir, "root")
	if _, err := NewExtractor(nil).Extract(context.Background(), archive, root); err == nil {
		t.Fatal("Extract() should fail on a truncated archive")
	}
	if _, err := os.Stat(filepath.Join(root, "first.txt")); !os.IsNotExist(err) {
		t.Error("truncated archive should be rejected before anything is written")
	}
}

func TestExtractor_List(t *testing.T) {
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "bundle.tar.xz")
	writeTestArchive(t, archive, compressionXz, []testEntry{
		{name: "data/", typeflag: tar.TypeDir},
		{name: "data/Image_loc.txt", body: "loc"},
		{name: "data/link", typeflag: tar.TypeSymlink, linkname: "Image_loc.txt"},
	})

	got, err := NewExtractor(nil).List(context.Background(), archive)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []entities.ArchiveEntry{
		{Name: "data/", Type: entities.EntryDir, Mode: 0755},
		{Name: "data/Image_loc.txt", Type: entities.EntryFile, Size: 3, Mode: 0644},
		{Name: "data/link", Type: entities.EntrySymlink, Mode: 0644, LinkTarget: "Image_loc.txt"},
	}
	if len(got) != len(want) {
		t.Fatalf("List() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "data")); !os.IsNotExist(err) {
		t.Error("List() should not write anything")
	}
}

func TestExtractor_Extract_Errors(t *testing.T) {
	t.Run("nonexistent archive", func(t *testing.T) {
		_, err := NewExtractor(nil).Extract(context.Background(), "/nonexistent.tar.bz2", t.TempDir())
		if err == nil {
			t.Error("Extract() should fail for nonexistent file")
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		tmpDir := t.TempDir()
		archive := filepath.Join(tmpDir, "bundle.tar")
		writeTestArchive(t, archive, compressionNone, []testEntry{{name: "a.txt", body: "a"}})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewExtractor(nil).Extract(ctx, archive, filepath.Join(tmpDir, "root"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Extract() error = %v, want context.Canceled", err)
		}
	})
}

func TestIsWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "data")

	tests := []struct {
		target string
		want   bool
	}{
		{root, true},
		{filepath.Join(root, "demo1.txt"), true},
		{filepath.Join(root, "..data", "x"), true},
		{filepath.Join(root, "sub", "..", "x"), true},
		{filepath.Join(root, ".."), false},
		{filepath.Join(string(filepath.Separator), "srv", "data-evil"), false},
		{filepath.Join(string(filepath.Separator), "etc", "passwd"), false},
	}

	for _, tt := range tests {
		if got := isWithin(root, tt.target); got != tt.want {
			t.Errorf("isWithin(%s, %s) = %v, want %v", root, tt.target, got, tt.want)
		}
	}
}

// FuzzResolveWithinRoot checks that no entry name resolves outside the root
//
// Run with: go test -fuzz=FuzzResolveWithinRoot -fuzztime=30s
func FuzzResolveWithinRoot(f *testing.F) {
	f.Add("data/demo1.txt")
	f.Add("../../etc/passwd")
	f.Add("/etc/passwd")
	f.Add("data/../../x")
	f.Add("./")
	f.Add("..")
	f.Add("a/b/../../../c")

	root := filepath.Join(string(filepath.Separator), "srv", "data")

	f.Fuzz(func(t *testing.T, name string) {
		target, err := resolveWithinRoot(root, name)
		if err != nil {
			return
		}
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			t.Errorf("resolveWithinRoot(%q) = %s, outside %s", name, target, root)
		}
	})
}
