package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/viant/sqlite-minhash/index"
	"github.com/viant/sqlite-minhash/signature"
	"github.com/viant/sqlite-minhash/store"
)

const (
	tracerName = "github.com/viant/sqlite-minhash/service"

	defaultLookupParallelism = 8
)

// Match is a scored query result.
type Match struct {
	ID         int64
	Owner      string
	Signature  *signature.Signature
	Similarity float64
}

// Result is the outcome of a query: scored matches plus the candidates that
// had to be skipped.
type Result struct {
	// Matches are ordered by decreasing similarity, ties by ascending id.
	Matches []Match

	// Candidates is the number of keys the index returned.
	Candidates int

	// Skipped lists candidates that could not be parsed, loaded or scored.
	Skipped []*CandidateError
}

// SimilarityScanner is implemented by stores that can score every record
// against a signature themselves.
type SimilarityScanner interface {
	ScanSimilar(ctx context.Context, sig *signature.Signature, minSimilarity float64) ([]store.Scored, error)
}

// Service orchestrates save, query and rehydration against one index and one
// store. It is safe for concurrent use.
type Service struct {
	store       store.Store
	index       index.Index
	numPerm     int
	seed        uint64
	logger      *slog.Logger
	tracer      trace.Tracer
	parallelism int

	ready         atomic.Bool
	indexFailures atomic.Int64
	skipped       atomic.Int64
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSeed sets the permutation seed every signature must carry.
func WithSeed(seed uint64) Option { return func(s *Service) { s.seed = seed } }

// WithLookupParallelism bounds concurrent store lookups per query.
func WithLookupParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a Service for signatures of numPerm slots.
func New(st store.Store, ix index.Index, numPerm int, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("service: store is nil")
	}
	if ix == nil {
		return nil, fmt.Errorf("service: index is nil")
	}
	if numPerm <= 0 {
		return nil, fmt.Errorf("service: num_perm must be positive, got %d", numPerm)
	}
	s := &Service{
		store:       st,
		index:       ix,
		numPerm:     numPerm,
		seed:        signature.DefaultSeed,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		parallelism: defaultLookupParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NumPerm returns the configured signature length.
func (s *Service) NumPerm() int { return s.numPerm }

// Seed returns the configured permutation seed.
func (s *Service) Seed() uint64 { return s.seed }

// Ready reports whether rehydration has completed.
func (s *Service) Ready() bool { return s.ready.Load() }

// IndexLen returns the number of indexed keys.
func (s *Service) IndexLen() int { return s.index.Len() }

// IndexFailures returns how many saves were persisted but not indexed.
func (s *Service) IndexFailures() int64 { return s.indexFailures.Load() }

// SkippedCandidates returns how many query candidates were skipped so far.
func (s *Service) SkippedCandidates() int64 { return s.skipped.Load() }

// Validate checks that sig matches the configured length and seed.
func (s *Service) Validate(sig *signature.Signature) error {
	if err := sig.Validate(s.numPerm); err != nil {
		return err
	}
	if sig.Seed != s.seed {
		return &signature.ConfigMismatchError{Want: s.numPerm, Got: sig.Len(), SeedMismatch: true}
	}
	return nil
}

// Save persists sig for owner and then indexes it under FormatKey(owner, id).
// An indexing failure after a successful write is logged as a
// RecoverableIndexError and the id is still returned: the record is durable
// and the next rehydration indexes it.
func (s *Service) Save(ctx context.Context, owner string, sig *signature.Signature) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "service.Save", trace.WithAttributes(attribute.String("owner", owner)))
	defer span.End()

	if err := ValidateOwner(owner); err != nil {
		return 0, spanError(span, err)
	}
	if err := s.Validate(sig); err != nil {
		return 0, spanError(span, err)
	}
	id, err := s.store.Insert(ctx, owner, sig)
	if err != nil {
		return 0, spanError(span, fmt.Errorf("service: save: %w", err))
	}
	span.SetAttributes(attribute.Int64("record.id", id))

	if err := s.index.Insert(FormatKey(owner, id), sig); err != nil && !errors.Is(err, index.ErrDuplicateKey) {
		rie := &RecoverableIndexError{ID: id, Owner: owner, Err: err}
		s.indexFailures.Add(1)
		span.RecordError(rie)
		s.logger.ErrorContext(ctx, "record persisted but not indexed", "id", id, "owner", owner, "error", err)
	}
	return id, nil
}

// QueryOption customises a query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	minSimilarity float64
	limit         int
}

// WithMinSimilarity drops matches below min.
func WithMinSimilarity(min float64) QueryOption {
	return func(o *queryOptions) { o.minSimilarity = min }
}

// WithLimit caps the number of returned matches; 0 means no limit.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

type candidate struct {
	match *Match
	err   *CandidateError
}

// Query returns the stored signatures the index proposes for sig, each
// re-scored exactly. A candidate that cannot be parsed, loaded or scored is
// skipped and reported in Result.Skipped; it never fails the whole query.
func (s *Service) Query(ctx context.Context, sig *signature.Signature, opts ...QueryOption) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "service.Query")
	defer span.End()

	if !s.Ready() {
		return nil, spanError(span, ErrNotReady)
	}
	if err := s.Validate(sig); err != nil {
		return nil, spanError(span, err)
	}
	o := &queryOptions{}
	for _, opt := range opts {
		opt(o)
	}

	keys, err := s.index.Query(sig)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("service: index query: %w", err))
	}
	span.SetAttributes(attribute.Int("candidates", len(keys)))

	candidates := make([]candidate, len(keys))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, key := range keys {
		g.Go(func() error {
			candidates[i] = s.score(ctx, key, sig)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, spanError(span, err)
	}

	res := &Result{Candidates: len(keys)}
	for _, c := range candidates {
		if c.err != nil {
			res.Skipped = append(res.Skipped, c.err)
			s.logger.WarnContext(ctx, "skipping query candidate", "key", c.err.Key, "error", c.err.Err)
			continue
		}
		if c.match.Similarity < o.minSimilarity {
			continue
		}
		res.Matches = append(res.Matches, *c.match)
	}
	s.skipped.Add(int64(len(res.Skipped)))
	sortMatches(res.Matches)
	if o.limit > 0 && len(res.Matches) > o.limit {
		res.Matches = res.Matches[:o.limit]
	}
	span.SetAttributes(attribute.Int("matches", len(res.Matches)), attribute.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (s *Service) score(ctx context.Context, key string, sig *signature.Signature) candidate {
	fail := func(err error) candidate { return candidate{err: &CandidateError{Key: key, Err: err}} }

	owner, id, err := ParseKey(key)
	if err != nil {
		return fail(err)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return fail(err)
	}
	if rec.Owner != owner {
		return fail(fmt.Errorf("owner mismatch: record %d belongs to %q", id, rec.Owner))
	}
	sim, err := signature.Jaccard(sig, rec.Signature)
	if err != nil {
		return fail(err)
	}
	return candidate{match: &Match{ID: rec.ID, Owner: rec.Owner, Signature: rec.Signature, Similarity: sim}}
}

// Rehydrate inserts every persisted record into the index and marks the
// service ready. Keys already present are skipped, so Rehydrate may be
// repeated to index records whose earlier indexing failed. Any other error
// aborts rehydration and leaves the service not ready.
func (s *Service) Rehydrate(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "service.Rehydrate")
	defer span.End()

	started := time.Now()
	s.logger.InfoContext(ctx, "rehydrating index")
	inserted := 0
	err := s.store.Scan(ctx, func(rec *store.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.index.Insert(FormatKey(rec.Owner, rec.ID), rec.Signature)
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, index.ErrDuplicateKey):
		default:
			return fmt.Errorf("service: rehydrate record %d: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "rehydration failed", "inserted", inserted, "error", err)
		return inserted, spanError(span, err)
	}
	s.ready.Store(true)
	span.SetAttributes(attribute.Int("inserted", inserted))
	s.logger.InfoContext(ctx, "index rehydrated",
		"inserted", inserted,
		"indexed", s.index.Len(),
		"duration", time.Since(started))
	return inserted, nil
}

// ScanExact scores every stored signature against sig without consulting the
// index. It requires a store implementing SimilarityScanner and is meant for
// recall audits and small corpora.
func (s *Service) ScanExact(ctx context.Context, sig *signature.Signature, minSimilarity float64) ([]Match, error) {
	ctx, span := s.tracer.Start(ctx, "service.ScanExact")
	defer span.End()

	if err := s.Validate(sig); err != nil {
		return nil, spanError(span, err)
	}
	scanner, ok := s.store.(SimilarityScanner)
	if !ok {
		return nil, spanError(span, fmt.Errorf("service: store %T does not support exact scans", s.store))
	}
	scored, err := scanner.ScanSimilar(ctx, sig, minSimilarity)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("service: exact scan: %w", err))
	}
	out := make([]Match, len(scored))
	for i, sc := range scored {
		out[i] = Match{ID: sc.ID, Owner: sc.Owner, Signature: sc.Signature, Similarity: sc.Similarity}
	}
	sortMatches(out)
	return out, nil
}

func sortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Similarity != m[j].Similarity {
			return m[i].Similarity > m[j].Similarity
		}
		return m[i].ID < m[j].ID
	})
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
