package bulkindex

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ErrStop is returned (possibly wrapped) by an Uploader when no further file can
// succeed, such as when the account is out of credits. The run ends without retrying.
var ErrStop = errors.New("bulk index stopped")

// Uploader indexes one file and returns the resulting document id.
type Uploader interface {
	IndexFile(ctx context.Context, f SourceFile, project string) (string, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Config controls a bulk run.
type Config struct {
	UserID     string
	Project    string // defaults to the base name of the root
	MaxBytes   int64
	Attempts   int // per file, defaults to 3
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Summary reports what a run did.
type Summary struct {
	Scanned   int `json:"scanned"`
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Replaced  int `json:"replaced"`
	Failed    int `json:"failed"`
}

// Indexer uploads the changed source files under a directory.
type Indexer struct {
	cfg      Config
	uploader Uploader
	state    *State
	log      zerolog.Logger
}

func New(cfg Config, uploader Uploader, state *State, log zerolog.Logger) *Indexer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	return &Indexer{cfg: cfg, uploader: uploader, state: state, log: log.With().Str("component", "bulkindex").Logger()}
}

// Run scans root and indexes every file whose content changed since the last run.
// A changed file replaces its previous document. State is saved after every file so
// an interrupted run resumes where it stopped.
func (i *Indexer) Run(ctx context.Context, root string) (Summary, error) {
	var sum Summary
	abs, err := filepath.Abs(root)
	if err != nil {
		return sum, err
	}
	project := i.cfg.Project
	if project == "" {
		project = filepath.Base(abs)
	}

	files, err := Scan(abs, i.cfg.MaxBytes)
	if err != nil {
		return sum, err
	}
	sum.Scanned = len(files)

	known, err := i.state.Load(i.cfg.UserID, abs)
	if err != nil {
		i.log.Warn().Err(err).Msg("failed to load index state; re-indexing everything")
		known = map[string]FileState{}
	}

	for _, f := range files {
		prev, seen := known[f.RelPath]
		if seen && prev.Hash == f.Hash {
			sum.Unchanged++
			continue
		}

		docID, err := i.upload(ctx, f, project)
		if err != nil {
			sum.Failed++
			if errors.Is(err, ErrStop) || ctx.Err() != nil {
				i.log.Warn().Err(err).Str("path", f.RelPath).Msg("bulk index stopped")
				return sum, err
			}
			i.log.Error().Err(err).Str("path", f.RelPath).Msg("file not indexed")
			continue
		}
		sum.Indexed++

		if seen && prev.DocumentID != "" {
			if err := i.uploader.DeleteDocument(ctx, prev.DocumentID); err != nil {
				i.log.Warn().Err(err).Str("document_id", prev.DocumentID).Msg("stale document not deleted")
			} else {
				sum.Replaced++
			}
		}
		known[f.RelPath] = FileState{Hash: f.Hash, DocumentID: docID}
		if err := i.state.Save(i.cfg.UserID, abs, known); err != nil {
			i.log.Warn().Err(err).Msg("failed to save index state")
		}
	}

	i.log.Info().
		Int("scanned", sum.Scanned).
		Int("indexed", sum.Indexed).
		Int("unchanged", sum.Unchanged).
		Int("failed", sum.Failed).
		Msg("bulk index complete")
	return sum, nil
}

// upload retries transient failures with capped exponential backoff.
func (i *Indexer) upload(ctx context.Context, f SourceFile, project string) (string, error) {
	backoff := i.cfg.BackoffMin
	var lastErr error
	for attempt := 1; attempt <= i.cfg.Attempts; attempt++ {
		id, err := i.uploader.IndexFile(ctx, f, project)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if errors.Is(err, ErrStop) || attempt == i.cfg.Attempts {
			break
		}
		i.log.Debug().Err(err).Str("path", f.RelPath).Int("attempt", attempt).Dur("sleep", backoff).Msg("retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
		if backoff > i.cfg.BackoffMax {
			backoff = i.cfg.BackoffMax
		}
	}
	return "", lastErr
}
