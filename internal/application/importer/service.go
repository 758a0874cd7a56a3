// Package importer runs import batches through normalization, duplicate
// matching and the persistence gate, and records each run.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/eshaffer321/ledgerbook/internal/domain/gate"
	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
	"github.com/eshaffer321/ledgerbook/internal/domain/matcher"
	"github.com/eshaffer321/ledgerbook/internal/domain/normalizer"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/blobstore"
	"github.com/eshaffer321/ledgerbook/internal/infrastructure/storage"
)

// Repository is the storage the importer needs.
type Repository interface {
	storage.LedgerRepository
	storage.ImportRunRepository
}

// Service previews and commits import batches.
type Service struct {
	repo    Repository
	archive blobstore.Store
	matcher *matcher.Matcher
	policy  LookupFailurePolicy
	logger  *slog.Logger

	// one commit at a time, so a preview is not stale by the time its
	// rows are written
	commitMu sync.Mutex
}

// NewService creates an importer. archive may be nil.
func NewService(repo Repository, archive blobstore.Store, cfg Config, logger *slog.Logger) *Service {
	if archive == nil {
		archive = blobstore.Noop{}
	}
	if cfg.LookupFailurePolicy == "" {
		cfg.LookupFailurePolicy = PolicyBlock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		archive: archive,
		matcher: matcher.NewMatcher(cfg.Matcher),
		policy:  cfg.LookupFailurePolicy,
		logger:  logger,
	}
}

// Preview normalizes the batch and checks every candidate against the
// ledger. It writes nothing.
func (s *Service) Preview(ctx context.Context, batch Batch) (*Preview, error) {
	if len(batch.Records) == 0 {
		return nil, ErrEmptyBatch
	}

	preview := &Preview{
		New:        make([]Candidate, 0),
		Duplicates: make([]Duplicate, 0),
		Rejected:   make([]Rejected, 0),
	}

	candidates := make([]Candidate, 0, len(batch.Records))
	for i, raw := range batch.Records {
		entry, err := normalizer.Normalize(raw)
		if err != nil {
			preview.Rejected = append(preview.Rejected, Rejected{Index: i, Reason: err.Error(), Raw: raw.Fields})
			continue
		}
		candidates = append(candidates, Candidate{Index: i, ID: entry.Record().ID(), Entry: *entry})
	}

	existing, err := s.repo.ExistingRows(ctx)
	if err != nil {
		if s.policy != PolicyWarn {
			return nil, fmt.Errorf("%w: %w", ErrLookupUnavailable, err)
		}
		s.logger.Warn("ledger lookup failed, listing every candidate as new",
			"error", err,
			"candidates", len(candidates),
		)
		preview.CheckFailed = true
		preview.CheckError = err.Error()
		preview.New = append(preview.New, candidates...)
		return preview, nil
	}

	records := make([]ledger.TransactionRecord, len(candidates))
	for i, c := range candidates {
		records[i] = c.Entry.Record()
	}
	result := s.matcher.FindDuplicates(records, existing)

	for i, c := range candidates {
		detail, ok := result.DetailFor(i)
		if !ok {
			preview.New = append(preview.New, c)
			continue
		}
		preview.Duplicates = append(preview.Duplicates, Duplicate{
			Candidate:        c,
			Tier:             detail.Tier.String(),
			LedgerID:         detail.LedgerID,
			LedgerIdentifier: detail.LedgerIdentifier,
			NeedsReview:      detail.NeedsReview(),
			tier:             detail.Tier,
		})
	}

	s.logger.Debug("import preview",
		"records", len(batch.Records),
		"new", len(preview.New),
		"duplicates", len(preview.Duplicates),
		"rejected", len(preview.Rejected),
	)
	return preview, nil
}

// Commit previews the batch and writes its new rows, plus any forced
// heuristic duplicates, through the persistence gate. The run is recorded
// whether or not it succeeds.
func (s *Service) Commit(ctx context.Context, batch Batch, opts CommitOptions) (*CommitResult, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	result := &CommitResult{BatchID: uuid.NewString(), DryRun: opts.DryRun}
	log := s.logger.With("batch_id", result.BatchID)

	runID, err := s.repo.StartImportRun(ctx, storage.ImportRun{
		BatchID:    result.BatchID,
		SourceKind: string(batch.Kind),
		Origin:     string(batch.Origin),
		Filename:   batch.Filename,
		DryRun:     opts.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record import run: %w", err)
	}
	result.RunID = runID

	counts, err := s.commit(ctx, log, batch, opts, result)
	if completeErr := s.repo.CompleteImportRun(ctx, runID, counts, err); completeErr != nil {
		log.Error("failed to complete import run", "run_id", runID, "error", completeErr)
	}
	if err != nil {
		return nil, err
	}

	log.Info("import committed",
		"run_id", runID,
		"origin", batch.Origin,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"rejected", result.Rejected,
		"conflicts", result.Conflicts,
		"forced", result.Forced,
		"flagged", len(result.Flagged),
		"dry_run", opts.DryRun,
	)
	return result, nil
}

func (s *Service) commit(ctx context.Context, log *slog.Logger, batch Batch, opts CommitOptions, result *CommitResult) (storage.ImportCounts, error) {
	preview, err := s.Preview(ctx, batch)
	if err != nil {
		return storage.ImportCounts{}, err
	}
	result.Preview = preview
	result.Rejected = len(preview.Rejected)

	force := make(map[string]struct{}, len(opts.Force))
	for _, id := range opts.Force {
		force[ledger.NormalizeID(id)] = struct{}{}
	}

	selected := make([]Candidate, 0, len(preview.New))
	selected = append(selected, preview.New...)
	for _, d := range preview.Duplicates {
		if opts.ReferenceOnly && d.tier == matcher.TierAmountCurrency {
			selected = append(selected, d.Candidate)
			result.Flagged = append(result.Flagged, d.ID)
			continue
		}
		if _, ok := force[d.ID]; ok {
			if d.tier == matcher.TierAmountCurrency {
				selected = append(selected, d.Candidate)
				result.Forced++
				continue
			}
			log.Warn("ignoring force for a reference match", "id", d.ID, "tier", d.Tier)
		}
		result.Duplicates++
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Index < selected[j].Index })

	entries := make([]ledger.Entry, len(selected))
	for i, c := range selected {
		entries[i] = c.Entry
		entries[i].BatchID = result.BatchID
	}
	result.Suppressed = gate.SuppressedArchiveReferences(entries)
	if len(result.Suppressed) > 0 {
		log.Warn("duplicate archive references in batch, cleared before insert", "references", result.Suppressed)
	}
	prepared := gate.Prepare(entries)

	counts := storage.ImportCounts{
		Candidates: preview.Candidates(),
		Duplicates: result.Duplicates,
		Rejected:   result.Rejected,
	}

	if opts.DryRun {
		result.Pending = len(prepared)
		return counts, nil
	}

	if len(batch.Upload) > 0 {
		key := blobstore.ObjectKey(result.BatchID, batch.Filename)
		uri, err := s.archive.Put(ctx, key, batch.ContentType, bytes.NewReader(batch.Upload))
		if err != nil {
			log.Warn("failed to archive upload", "key", key, "error", err)
		}
		result.ArchiveURI = uri
	}

	if len(prepared) > 0 {
		inserted, conflicts, err := s.repo.InsertEntries(ctx, prepared)
		if err != nil {
			return counts, fmt.Errorf("failed to insert entries: %w", err)
		}
		result.Inserted = inserted
		result.Conflicts = conflicts
	}
	counts.Inserted = result.Inserted
	counts.Conflicts = result.Conflicts
	return counts, nil
}
