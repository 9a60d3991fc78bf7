// Package syft produces CycloneDX SBOMs from project directories.
package syft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// ErrNotInstalled is returned when the syft executable cannot be found.
var ErrNotInstalled = errors.New("syft not found. Install syft or provide --sbom <path>.")

type Generator struct {
	Binary string
}

func NewGenerator(binary string) *Generator {
	if binary == "" {
		binary = "syft"
	}
	return &Generator{Binary: binary}
}

// Generate writes a CycloneDX JSON SBOM of dir to a temporary file. The
// caller removes the returned file.
func (g *Generator) Generate(ctx context.Context, dir string) (string, error) {
	f, err := os.CreateTemp("", "sbom-tm-*.cdx.json")
	if err != nil {
		return "", err
	}
	f.Close()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.Binary, dir, "-o", "cyclonedx-json="+f.Name())
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(f.Name())
		var ee *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return "", ErrNotInstalled
		case errors.As(err, &ee):
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = fmt.Sprintf("exit code %d", ee.ExitCode())
			}
			return "", fmt.Errorf("syft failed: %s", msg)
		default:
			return "", fmt.Errorf("running syft: %w", err)
		}
	}
	return f.Name(), nil
}
