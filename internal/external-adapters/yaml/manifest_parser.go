// Package yaml provides the YAML bundle manifest parser and repository.
package yaml

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"gopkg.in/yaml.v3"
)

// yamlManifest represents the raw YAML structure of bundles.yml
type yamlManifest struct {
	Bundles []yamlBundle `yaml:"bundles"`
}

type yamlBundle struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Description  string   `yaml:"description"`
	LocalPath    string   `yaml:"local_path"`
	RemoteURL    string   `yaml:"remote_url"`
	Checksum     string   `yaml:"checksum"`
	Algorithm    string   `yaml:"algorithm"`
	ExtractRoot  string   `yaml:"extract_root"`
	SignatureURL string   `yaml:"signature_url"`
	KeyringPath  string   `yaml:"keyring_path"`
	Extract      *bool    `yaml:"extract"`
	Files        []string `yaml:"files"`
}

// ManifestParser parses YAML bundle manifests
type ManifestParser struct{}

// NewManifestParser creates a new YAML parser
func NewManifestParser() *ManifestParser {
	return &ManifestParser{}
}

// ParseFile parses a manifest file. Paths in the result are left as written.
func (p *ManifestParser) ParseFile(filePath string) ([]*entities.BundleDescriptor, error) {
	//nolint:gosec // G304: filePath is the configured manifest
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into bundle descriptors in manifest order
func (p *ManifestParser) Parse(data []byte) ([]*entities.BundleDescriptor, error) {
	var manifest yamlManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(manifest.Bundles) == 0 {
		return nil, fmt.Errorf("manifest declares no bundles")
	}

	seen := make(map[string]bool, len(manifest.Bundles))
	descs := make([]*entities.BundleDescriptor, 0, len(manifest.Bundles))
	for i, yb := range manifest.Bundles {
		desc, err := convertBundle(yb)
		if err != nil {
			return nil, fmt.Errorf("bundle #%d: %w", i+1, err)
		}
		if seen[desc.Name] {
			return nil, fmt.Errorf("duplicate bundle name: %s", desc.Name)
		}
		seen[desc.Name] = true
		descs = append(descs, desc)
	}

	return descs, nil
}

func convertBundle(yb yamlBundle) (*entities.BundleDescriptor, error) {
	// Validate required fields
	if yb.Name == "" {
		return nil, fmt.Errorf("bundle must have a name")
	}
	if yb.RemoteURL == "" {
		return nil, fmt.Errorf("%s: remote_url is required", yb.Name)
	}
	// extract defaults to true; false places the fetched file as is
	plain := yb.Extract != nil && !*yb.Extract
	if yb.Checksum == "" && !plain {
		return nil, fmt.Errorf("%s: checksum is required", yb.Name)
	}
	if plain && len(yb.Files) > 0 {
		return nil, fmt.Errorf("%s: files only apply to bundles that are extracted", yb.Name)
	}

	remote, err := url.Parse(yb.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid remote_url: %w", yb.Name, err)
	}
	if remote.Scheme != "http" && remote.Scheme != "https" {
		return nil, fmt.Errorf("%s: remote_url must be http or https, got %q", yb.Name, remote.Scheme)
	}

	fingerprint := strings.ToLower(strings.TrimSpace(yb.Checksum))
	var algo entities.DigestAlgorithm
	if fingerprint != "" {
		algo, err = entities.ParseDigestAlgorithm(yb.Algorithm, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", yb.Name, err)
		}
		if err := entities.ValidateFingerprint(algo, fingerprint); err != nil {
			return nil, fmt.Errorf("%s: %w", yb.Name, err)
		}
	} else if yb.Algorithm != "" {
		return nil, fmt.Errorf("%s: algorithm is set but checksum is empty", yb.Name)
	}

	localPath := yb.LocalPath
	if localPath == "" {
		localPath = path.Base(remote.Path)
		if localPath == "." || localPath == "/" {
			return nil, fmt.Errorf("%s: local_path is required when remote_url has no file name", yb.Name)
		}
	}

	if yb.SignatureURL != "" && yb.KeyringPath == "" {
		return nil, fmt.Errorf("%s: keyring_path is required with signature_url", yb.Name)
	}

	for _, f := range yb.Files {
		if !filepath.IsLocal(filepath.FromSlash(f)) {
			return nil, fmt.Errorf("%s: file %q must be a relative path inside the extraction root", yb.Name, f)
		}
	}

	return &entities.BundleDescriptor{
		Name:        yb.Name,
		Version:     yb.Version,
		Description: yb.Description,
		LocalPath:   localPath,
		RemoteURL:   yb.RemoteURL,
		Fingerprint: fingerprint,
		Algorithm:   algo,
		ExtractRoot: yb.ExtractRoot,
		Signature: entities.BundleSignature{
			URL:         yb.SignatureURL,
			KeyringPath: yb.KeyringPath,
		},
		Files:     yb.Files,
		PlainFile: plain,
	}, nil
}
