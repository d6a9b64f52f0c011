// Package summarize drafts summaries for the files of a change report. Drafts
// are checkpointed after every file so an interrupted run resumes where it
// stopped.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/extract"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// Backend generates summaries.
type Backend interface {
	Available(ctx context.Context) error
	Generate(ctx context.Context, prompt string) (string, error)
}

// Observer is told the outcome and latency of every backend call.
type Observer interface {
	ObserveSummary(outcome string, took time.Duration)
}

// Options tunes a Summarizer.
type Options struct {
	MaxWords    int
	MaxChars    int
	DryRun      bool
	Categorizer Categorizer
	Observer    Observer
}

// Summarizer runs the summarize stage.
type Summarizer struct {
	ws      *workspace.Workspace
	backend Backend
	extract *extract.Extractor
	opts    Options
}

// New creates a Summarizer.
func New(ws *workspace.Workspace, backend Backend, opts Options) *Summarizer {
	if opts.MaxWords <= 0 {
		opts.MaxWords = 50
	}
	if len(opts.Categorizer.Rules) == 0 {
		opts.Categorizer.Rules = DefaultRules()
	}
	return &Summarizer{ws: ws, backend: backend, extract: extract.New(ws, opts.MaxChars), opts: opts}
}

// Result reports one run.
type Result struct {
	Total     int
	Resumed   int
	Generated []workflow.PendingSummary
	Missing   []string
	Failed    []string
}

// Prompt builds the summarization prompt.
func Prompt(maxWords int, text string) string {
	return fmt.Sprintf("Summarize this document in %d words or less:\n\n%s", maxWords, text)
}

// Run drafts a summary for every pending file of report not already drafted
// or approved.
func (s *Summarizer) Run(ctx context.Context, report *workflow.ChangeReport) (*Result, error) {
	log := s.ws.Log
	if err := s.backend.Available(ctx); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	drafts, _ := workflow.LoadPending(s.ws.Store, workspace.DraftsFile, log)
	approved, _ := workflow.LoadPending(s.ws.Store, workspace.ApprovedFile, log)

	pending := report.Pending()
	res := &Result{Total: len(pending)}
	var todo []models.FileRef
	for _, ref := range pending {
		if drafts.Has(ref.Path) || approved.Has(ref.Path) {
			res.Resumed++
			continue
		}
		todo = append(todo, ref)
	}
	if res.Resumed > 0 {
		log.Info("resuming from checkpoint", slog.Int("done", res.Resumed), slog.Int("total", res.Total))
	}

	for i, ref := range todo {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log.Info("summarizing", slog.String("path", ref.Path), slog.Int("n", res.Resumed+i+1), slog.Int("of", res.Total))
		item, err := s.one(ctx, ref)
		switch {
		case errors.Is(err, errMissing):
			log.Warn("file not found, skipping", slog.String("path", ref.Path))
			res.Missing = append(res.Missing, ref.Path)
			continue
		case err != nil && (errors.Is(err, apperr.ErrBackendUnavailable) || ctx.Err() != nil):
			return res, fmt.Errorf("summarize: %w", err)
		case err != nil:
			log.Warn("summary failed", slog.String("path", ref.Path), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, ref.Path)
			continue
		}

		drafts.Put(item)
		res.Generated = append(res.Generated, item)
		if s.opts.DryRun {
			continue
		}
		drafts.Timestamp = models.NewTimestamp(s.ws.Now())
		if err := workflow.SavePending(s.ws.Store, workspace.DraftsFile, drafts); err != nil {
			return res, fmt.Errorf("summarize: checkpoint: %w", err)
		}
	}
	return res, nil
}

var errMissing = errors.New("file missing")

func (s *Summarizer) one(ctx context.Context, ref models.FileRef) (workflow.PendingSummary, error) {
	if !s.ws.Store.Exists(ref.Path) {
		return workflow.PendingSummary{}, errMissing
	}
	text, err := s.extract.Extract(ref.Path)
	if err != nil {
		return workflow.PendingSummary{}, err
	}

	start := time.Now()
	summary, err := s.backend.Generate(ctx, Prompt(s.opts.MaxWords, text.Body))
	s.observe(err, time.Since(start))
	if err != nil {
		return workflow.PendingSummary{}, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return workflow.PendingSummary{}, fmt.Errorf("backend returned an empty summary")
	}

	category := text.Category
	if category == "" {
		category = s.opts.Categorizer.Categorize(ref.Path, summary)
	}
	title := text.Title
	if title == "" {
		title = models.Stem(ref.Path)
	}
	return workflow.PendingSummary{
		File:      ref,
		Summary:   summary,
		Category:  category,
		Title:     title,
		Timestamp: models.NewTimestamp(s.ws.Now()),
	}, nil
}

func (s *Summarizer) observe(err error, took time.Duration) {
	if s.opts.Observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.opts.Observer.ObserveSummary(outcome, took)
}
