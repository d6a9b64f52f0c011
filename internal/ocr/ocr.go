// Package ocr turns images into sidecar text files with the tesseract binary.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/extract"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workspace"
)

// Config configures the OCR stage.
type Config struct {
	Binary   string
	Language string
	Timeout  time.Duration
}

// Runner runs OCR over the images of a workspace.
type Runner struct {
	ws  *workspace.Workspace
	cfg Config
}

// New creates a Runner.
func New(ws *workspace.Workspace, cfg Config) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Runner{ws: ws, cfg: cfg}
}

// Available checks that the OCR binary is on PATH.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.cfg.Binary); err != nil {
		return fmt.Errorf("ocr: %s not found, install tesseract: %w", r.cfg.Binary, apperr.ErrOCRUnavailable)
	}
	return nil
}

// Result lists what Run did.
type Result struct {
	Written []string
	Skipped []string
	Failed  []string
}

// Targets lists the images under the root, outside the sidecar directory.
func (r *Runner) Targets() ([]string, error) {
	f := r.ws.Filter
	f.Extensions = nil
	f.Exclude = append(append([]string{}, f.Exclude...), workspace.SidecarDir+"/**")
	all, err := r.ws.Store.List("", f)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	var out []string
	for _, p := range all {
		if extract.IsImage(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Run writes a sidecar for every image that lacks one, or for all with force.
func (r *Runner) Run(ctx context.Context, images []string, force bool) (*Result, error) {
	if err := r.Available(); err != nil {
		return nil, err
	}
	res := &Result{}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sidecar := extract.SidecarPath(img)
		if !force && r.ws.Store.Exists(sidecar) {
			res.Skipped = append(res.Skipped, img)
			continue
		}
		if err := r.one(ctx, img, sidecar); err != nil {
			r.ws.Log.Warn("ocr failed", slog.String("image", img), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, img)
			continue
		}
		r.ws.Log.Info("ocr sidecar written", slog.String("image", img), slog.String("sidecar", sidecar))
		res.Written = append(res.Written, sidecar)
	}
	return res, nil
}

func (r *Runner) one(ctx context.Context, img, sidecar string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	// tesseract appends .txt to the output base itself.
	base := strings.TrimSuffix(r.ws.Abs(models.RelPath(sidecar)), ".txt")
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return err
	}
	args := []string{r.ws.Abs(models.RelPath(img)), base}
	if r.cfg.Language != "" {
		args = append(args, "-l", r.cfg.Language)
	}
	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(r.cfg.Binary), err, strings.TrimSpace(string(out)))
	}
	if !r.ws.Store.Exists(sidecar) {
		return fmt.Errorf("%s produced no output", filepath.Base(r.cfg.Binary))
	}
	return nil
}
