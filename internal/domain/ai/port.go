package ai

import (
	"context"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// Client produces a JSON assessment for a threat digest.
type Client interface {
	Analyze(ctx context.Context, digest string) (string, error)
	Model() string
}

// Digester renders the threats of one scan into the digest handed to a Client.
type Digester interface {
	Digest(scan *threats.ProjectScan, items []threats.Export) (string, error)
}
