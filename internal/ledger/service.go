package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/royaltyops/royaltyops/internal/payees"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// regenerateParallelism bounds concurrent owner rebuilds in RegenerateAll.
const regenerateParallelism = 4

// Cache stores computed reports. Implementations must be safe for concurrent use.
type Cache interface {
	Version(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Bump(ctx context.Context) error
}

// Observer receives selection and self-check outcomes.
type Observer interface {
	ObserveSelection(source, reason string)
	AddViolations(kind string, count int)
}

// Config tunes the service.
type Config struct {
	Mode     Mode
	CacheTTL time.Duration
}

// Filter narrows a report.
type Filter struct {
	PayeeID *uuid.UUID
}

// Report is the ledger served to callers.
type Report struct {
	OwnerID     uuid.UUID `json:"owner_id"`
	Entries     []Entry   `json:"entries"`
	Source      Source    `json:"source"`
	Reason      Reason    `json:"reason"`
	GeneratedAt time.Time `json:"generated_at"`
}

// RegenerateResult summarises a rebuild of one owner's persisted ledger.
type RegenerateResult struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Payees  int       `json:"payees"`
	Entries int       `json:"entries"`
	Drift   []Drift   `json:"drift"`
}

// VerifyResult compares the persisted ledger against a rebuild.
type VerifyResult struct {
	OwnerID    uuid.UUID   `json:"owner_id"`
	Violations []Violation `json:"violations"`
	Drift      []Drift     `json:"drift"`
}

// Clean reports whether nothing was found.
func (r VerifyResult) Clean() bool {
	return len(r.Violations) == 0 && len(r.Drift) == 0
}

// Service serves and maintains payee balance ledgers.
type Service struct {
	repo     Repository
	cache    Cache
	cfg      Config
	logger   *slog.Logger
	observer Observer
	group    singleflight.Group
	now      func() time.Time
}

// NewService constructs the service. cache may be nil.
func NewService(repo Repository, cache Cache, cfg Config, logger *slog.Logger) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ModeTotals
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetObserver wires metrics.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Ledger returns the owner's ledger, newest-first, from cache when possible.
func (s *Service) Ledger(ctx context.Context, owner uuid.UUID, filter Filter) (Report, error) {
	if owner == uuid.Nil {
		return Report{}, shared.ErrOwnerRequired
	}

	key := ""
	if s.cache != nil {
		version, err := s.cache.Version(ctx)
		if err != nil {
			s.logger.Warn("ledger cache version", slog.Any("error", err))
		} else {
			key = shared.LedgerCacheKey(owner.String(), version)
			var cached Report
			hit, err := s.cache.Get(ctx, key, &cached)
			if err != nil {
				s.logger.Warn("ledger cache get", slog.String("key", key), slog.Any("error", err))
			} else if hit {
				return applyFilter(cached, filter), nil
			}
		}
	}

	flightKey := key
	if flightKey == "" {
		flightKey = "ledger:owner:" + owner.String()
	}
	// The build is shared by every caller joining the flight, so one caller
	// cancelling must not fail the others.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(flightKey, func() (any, error) {
		report, err := s.build(flightCtx, owner)
		if err != nil {
			return Report{}, err
		}
		if key != "" {
			if err := s.cache.Set(flightCtx, key, report, s.cfg.CacheTTL); err != nil {
				s.logger.Warn("ledger cache set", slog.String("key", key), slog.Any("error", err))
			}
		}
		return report, nil
	})
	if err != nil {
		return Report{}, err
	}
	return applyFilter(v.(Report), filter), nil
}

func (s *Service) build(ctx context.Context, owner uuid.UUID) (Report, error) {
	snap, err := s.repo.Snapshot(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", shared.ErrSnapshotUnavailable, err)
	}
	dir := payees.NewDirectory(snap.Payees)
	persisted, err := NormalizePersisted(snap.Persisted, dir)
	if err != nil {
		return Report{}, err
	}
	sel := SelectSource(persisted, snap.Payouts, dir, s.cfg.Mode, s.logger.With(slog.String("owner_id", owner.String())))
	if s.observer != nil {
		s.observer.ObserveSelection(string(sel.Source), string(sel.Reason))
	}
	return Report{
		OwnerID:     owner,
		Entries:     sel.Entries,
		Source:      sel.Source,
		Reason:      sel.Reason,
		GeneratedAt: s.now(),
	}, nil
}

func applyFilter(report Report, filter Filter) Report {
	if filter.PayeeID == nil {
		return report
	}
	out := report
	out.Entries = make([]Entry, 0)
	for _, e := range report.Entries {
		if e.PayeeID == *filter.PayeeID {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// Regenerate replaces the owner's persisted ledger with a rebuild from payouts.
func (s *Service) Regenerate(ctx context.Context, owner uuid.UUID) (RegenerateResult, error) {
	if owner == uuid.Nil {
		return RegenerateResult{}, shared.ErrOwnerRequired
	}
	result := RegenerateResult{OwnerID: owner}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		snap, err := tx.Snapshot(ctx, owner)
		if err != nil {
			return err
		}
		dir := payees.NewDirectory(snap.Payees)
		persisted, err := NormalizePersisted(snap.Persisted, dir)
		if err != nil {
			s.logger.Warn("discarding unreadable persisted ledger", slog.String("owner_id", owner.String()), slog.Any("error", err))
			persisted = nil
		}
		rebuilt := BuildFromPayouts(snap.Payouts, dir, s.logger)
		entries := rebuilt.Entries()
		result.Payees = rebuilt.Payees()
		result.Entries = len(entries)
		result.Drift = Diff(persisted, entries)
		return tx.ReplaceEntries(ctx, owner, ToPersisted(entries, s.now()))
	})
	if err != nil {
		return RegenerateResult{}, fmt.Errorf("ledger: regenerate %s: %w", owner, err)
	}
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("ledger cache bump", slog.Any("error", err))
	}
	s.logger.Info("ledger regenerated",
		slog.String("owner_id", owner.String()),
		slog.Int("payees", result.Payees),
		slog.Int("entries", result.Entries),
		slog.Int("drift", len(result.Drift)))
	return result, nil
}

// RegenerateAll rebuilds every owner that has payouts.
func (s *Service) RegenerateAll(ctx context.Context) ([]RegenerateResult, error) {
	owners, err := s.Owners(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make([]RegenerateResult, 0, len(owners))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(regenerateParallelism)
	for _, owner := range owners {
		g.Go(func() error {
			res, err := s.Regenerate(gctx, owner)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Owners lists every owner that has payouts.
func (s *Service) Owners(ctx context.Context) ([]uuid.UUID, error) {
	owners, err := s.repo.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list owners: %w", err)
	}
	return owners, nil
}

// Invalidate drops every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Bump(ctx)
}

// Verify runs the self-check on the persisted ledger and diffs it against a rebuild.
func (s *Service) Verify(ctx context.Context, owner uuid.UUID) (VerifyResult, error) {
	if owner == uuid.Nil {
		return VerifyResult{}, shared.ErrOwnerRequired
	}
	snap, err := s.repo.Snapshot(ctx, owner)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %w", shared.ErrSnapshotUnavailable, err)
	}
	dir := payees.NewDirectory(snap.Payees)
	persisted, err := NormalizePersisted(snap.Persisted, dir)
	if err != nil {
		return VerifyResult{}, err
	}
	rebuilt := BuildFromPayouts(snap.Payouts, dir, s.logger).Entries()

	result := VerifyResult{
		OwnerID:    owner,
		Violations: Verify(persisted),
		Drift:      Diff(persisted, rebuilt),
	}
	if s.observer != nil {
		for kind, n := range CountByKind(result.Violations) {
			s.observer.AddViolations(string(kind), n)
		}
	}
	return result, nil
}

// IsSnapshotError reports whether err came from the backing store read.
func IsSnapshotError(err error) bool {
	return errors.Is(err, shared.ErrSnapshotUnavailable)
}
