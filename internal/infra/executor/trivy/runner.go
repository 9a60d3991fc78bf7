package trivy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanwahyu/sbom-tm/internal/domain/threats"
)

// ErrTrivy is returned when trivy is missing or exits with a code other
// than 0 (clean) or 1 (findings).
var ErrTrivy = fmt.Errorf("trivy: %w", threats.ErrScannerFailed)

// Mode selects how trivy is launched.
const (
	ModeBinary = "binary"
	ModeDocker = "docker"
)

// Config of the runner.
type Config struct {
	Binary   string // trivy executable for ModeBinary
	Mode     string
	Image    string // image for ModeDocker
	Docker   string // docker executable, default "docker"
	CacheDir string
	Offline  bool // always add --offline-scan
}

type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = "trivy"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeBinary
	}
	if cfg.Image == "" {
		cfg.Image = "aquasec/trivy:latest"
	}
	if cfg.Docker == "" {
		cfg.Docker = "docker"
	}
	return &Runner{cfg: cfg}
}

// ScanSBOM runs `trivy sbom <path> -f json` and decodes its stdout.
func (r *Runner) ScanSBOM(ctx context.Context, req threats.RunRequest) (threats.RunResult, error) {
	start := time.Now()

	cmd := r.command(ctx, req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// jalankan trivy
	err := cmd.Run()
	duration := time.Since(start).Milliseconds()

	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		switch {
		case errors.As(err, &ee):
			exitCode = ee.ExitCode()
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return threats.RunResult{}, fmt.Errorf("%w: Trivy binary not found. Install Trivy or set TRIVY_BIN.", ErrTrivy)
		default:
			return threats.RunResult{}, fmt.Errorf("%w: %v", ErrTrivy, err)
		}
	}
	if exitCode != 0 && exitCode != 1 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "Trivy scan failed"
		}
		return threats.RunResult{}, fmt.Errorf("%w: %s", ErrTrivy, msg)
	}

	report := map[string]any{}
	if out := bytes.TrimSpace(stdout.Bytes()); len(out) > 0 {
		if err := json.Unmarshal(out, &report); err != nil {
			return threats.RunResult{}, fmt.Errorf("%w: decoding report: %v", ErrTrivy, err)
		}
	}

	return threats.RunResult{
		Report:     report,
		ExitCode:   exitCode,
		DurationMS: duration,
	}, nil
}

func (r *Runner) command(ctx context.Context, req threats.RunRequest) *exec.Cmd {
	offline := req.Offline || r.cfg.Offline
	if r.cfg.Mode == ModeDocker {
		abs, err := filepath.Abs(req.SBOMPath)
		if err != nil {
			abs = req.SBOMPath
		}
		args := []string{"run", "--rm",
			"-v", fmt.Sprintf("%s:/sbom:ro", filepath.Dir(abs)),
			"-e", "TRIVY_CACHE_DIR=/cache",
		}
		if r.cfg.CacheDir != "" {
			args = append(args, "-v", fmt.Sprintf("%s:/cache", r.cfg.CacheDir))
		}
		args = append(args, r.cfg.Image, "sbom", "/sbom/"+filepath.Base(abs), "-f", "json")
		if offline {
			args = append(args, "--offline-scan")
		}
		return exec.CommandContext(ctx, r.cfg.Docker, args...)
	}

	args := []string{"sbom", req.SBOMPath, "-f", "json"}
	if offline {
		args = append(args, "--offline-scan")
	}
	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)
	if r.cfg.CacheDir != "" {
		cmd.Env = append(cmd.Environ(), "TRIVY_CACHE_DIR="+r.cfg.CacheDir)
	}
	return cmd
}
