package gateways

import (
	"context"
	"fmt"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/DecBayComp/tramway-tour/internal/external-adapters/gpg"
)

// gpgVerifier wraps the external GPG adapter to implement the domain gateway interface.
// Every call loads the keyring afresh so one bundle's keys never vouch for another.
type gpgVerifier struct {
	newVerifier func() *gpg.Verifier
}

// NewGPGVerifier creates a new GPG verifier gateway
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewGPGVerifier() *gpgVerifier {
	return &gpgVerifier{
		newVerifier: gpg.NewVerifier,
	}
}

// VerifyDetached checks sigPath over filePath using the keys in keyringPath.
// A bad signature is an *entities.IntegrityError; an unreadable keyring is not.
func (g *gpgVerifier) VerifyDetached(ctx context.Context, filePath, sigPath, keyringPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if keyringPath == "" {
		return fmt.Errorf("signature check for %s requires a keyring", filePath)
	}

	verifier := g.newVerifier()
	if err := verifier.ImportKeyFromFile(keyringPath); err != nil {
		return fmt.Errorf("failed to import GPG keyring %s: %w", keyringPath, err)
	}

	if err := verifier.VerifySignatureFromFile(filePath, sigPath); err != nil {
		return &entities.IntegrityError{Path: filePath, Err: err}
	}
	return nil
}
