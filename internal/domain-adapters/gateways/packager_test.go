package gateways

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

// writeProjectFiles creates files (relative path -> content) under dir
func writeProjectFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}
}

func TestPackager_PackBundle_RoundTrip(t *testing.T) {
	files := map[string]string{
		"data/demo1.txt":              "n\tx\ty\tt\n",
		"data/Image_traj.rwa":         "rwa",
		"notebooks/trajectories.webm": "webm",
	}

	tests := []struct {
		name      string
		file      string
		algorithm entities.DigestAlgorithm
	}{
		{"bzip2", "package_data.tar.bz2", entities.DigestMD5},
		{"gzip", "package_data.tar.gz", entities.DigestSHA256},
		{"tgz", "package_data.tgz", entities.DigestSHA1},
		{"xz", "package_data.tar.xz", entities.DigestSHA512},
		{"zstd", "package_data.tar.zst", entities.DigestBLAKE2b256},
		{"plain", "package_data.tar", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projectDir := t.TempDir()
			writeProjectFiles(t, projectDir, files)

			desc := &entities.BundleDescriptor{
				Name:      "package-data",
				LocalPath: filepath.Join(t.TempDir(), "dist", tt.file),
				Algorithm: tt.algorithm,
				Files:     []string{"data/demo1.txt", "data/Image_traj.rwa", "notebooks/trajectories.webm"},
			}

			result, err := NewPackager(nil).PackBundle(context.Background(), desc, projectDir)
			if err != nil {
				t.Fatalf("PackBundle() error = %v", err)
			}
			if len(result.Entries) != 3 {
				t.Errorf("PackBundle() packed %d entries, want 3", len(result.Entries))
			}

			wantAlgorithm := tt.algorithm
			if wantAlgorithm == "" {
				wantAlgorithm = entities.DigestSHA256
			}
			if result.Algorithm != wantAlgorithm {
				t.Errorf("Algorithm = %s, want %s", result.Algorithm, wantAlgorithm)
			}

			fingerprint, err := NewChecksumVerifier().CalculateChecksum(desc.LocalPath, wantAlgorithm)
			if err != nil {
				t.Fatal(err)
			}
			if result.Fingerprint != fingerprint {
				t.Errorf("Fingerprint = %s, want %s", result.Fingerprint, fingerprint)
			}

			root := t.TempDir()
			if _, err := NewExtractor(nil).Extract(context.Background(), desc.LocalPath, root); err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			for name, content := range files {
				if got := readFile(t, filepath.Join(root, filepath.FromSlash(name))); got != content {
					t.Errorf("%s = %q, want %q", name, got, content)
				}
			}
		})
	}
}

func TestPackager_PackBundle_Directory(t *testing.T) {
	projectDir := t.TempDir()
	writeProjectFiles(t, projectDir, map[string]string{
		"data/Image_loc.txt":  "loc",
		"data/Image_traj.txt": "traj",
	})

	desc := &entities.BundleDescriptor{
		Name:      "data-dir",
		LocalPath: filepath.Join(t.TempDir(), "data.tar.gz"),
		Files:     []string{"data"},
	}

	result, err := NewPackager(nil).PackBundle(context.Background(), desc, projectDir)
	if err != nil {
		t.Fatalf("PackBundle() error = %v", err)
	}

	names := make(map[string]entities.EntryType)
	for _, e := range result.Entries {
		names[e.Name] = e.Type
	}
	if names["data/"] != entities.EntryDir {
		t.Errorf("data/ should be packed as a directory, got entries %v", names)
	}
	for _, name := range []string{"data/Image_loc.txt", "data/Image_traj.txt"} {
		if names[name] != entities.EntryFile {
			t.Errorf("%s should be packed as a file, got entries %v", name, names)
		}
	}
}

func TestPackager_PackBundle_Errors(t *testing.T) {
	projectDir := t.TempDir()
	writeProjectFiles(t, projectDir, map[string]string{"data/demo1.txt": "demo"})

	tests := []struct {
		name string
		desc *entities.BundleDescriptor
	}{
		{
			name: "no files",
			desc: &entities.BundleDescriptor{Name: "empty", LocalPath: filepath.Join(t.TempDir(), "x.tar.gz")},
		},
		{
			name: "unsupported extension",
			desc: &entities.BundleDescriptor{Name: "zip", LocalPath: filepath.Join(t.TempDir(), "x.zip"), Files: []string{"data/demo1.txt"}},
		},
		{
			name: "file outside project",
			desc: &entities.BundleDescriptor{Name: "evil", LocalPath: filepath.Join(t.TempDir(), "x.tar.gz"), Files: []string{"../secret.txt"}},
		},
		{
			name: "plain file bundle",
			desc: &entities.BundleDescriptor{Name: "image_8bit", LocalPath: filepath.Join(t.TempDir(), "Image_8bit.tif"), Files: []string{"data/demo1.txt"}, PlainFile: true},
		},
		{
			name: "missing file",
			desc: &entities.BundleDescriptor{Name: "missing", LocalPath: filepath.Join(t.TempDir(), "x.tar.gz"), Files: []string{"data/absent.txt"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPackager(nil).PackBundle(context.Background(), tt.desc, projectDir)
			if err == nil {
				t.Fatal("PackBundle() should fail")
			}
			if _, statErr := os.Stat(tt.desc.LocalPath); !os.IsNotExist(statErr) {
				t.Error("a failed pack should not leave an archive behind")
			}
		})
	}
}
