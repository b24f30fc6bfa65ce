package proof

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/sha3"
)

// Filter rewrites content before it is hashed. The returned reader replaces
// the input for hashing; implementations must not retain in after returning
// an error.
type Filter interface {
	Apply(ctx context.Context, in io.Reader) (io.Reader, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, in io.Reader) (io.Reader, error)

// Apply calls f.
func (f FilterFunc) Apply(ctx context.Context, in io.Reader) (io.Reader, error) { return f(ctx, in) }

// Issuer issues and looks up proofs.
type Issuer struct {
	store   Store
	fetcher Fetcher
	policy  *AllowList
	filter  Filter
	logger  *slog.Logger
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f Fetcher) IssuerOption { return func(i *Issuer) { i.fetcher = f } }

// WithPolicy replaces the default Amazon export allow-list.
func WithPolicy(p *AllowList) IssuerOption { return func(i *Issuer) { i.policy = p } }

// WithFilter installs a content filter applied before hashing.
func WithFilter(f Filter) IssuerOption { return func(i *Issuer) { i.filter = f } }

// WithIssuerLogger sets the logger.
func WithIssuerLogger(l *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIssuer creates an Issuer over store.
func NewIssuer(store Store, opts ...IssuerOption) (*Issuer, error) {
	if store == nil {
		return nil, fmt.Errorf("proof: store is nil")
	}
	i := &Issuer{
		store:   store,
		fetcher: NewHTTPFetcher(DefaultFetchTimeout),
		policy:  AmazonExportPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue validates locator, fetches its content and records a proof of it.
// Nothing is written when validation, fetching or hashing fails.
func (i *Issuer) Issue(ctx context.Context, locator string) (*Proof, error) {
	return i.issue(ctx, locator, nil)
}

// IssueTo is Issue that also copies the hashed content, after filtering, to
// w. w may hold partial content when an error is returned, so callers should
// buffer it until the proof is recorded.
func (i *Issuer) IssueTo(ctx context.Context, locator string, w io.Writer) (*Proof, error) {
	if w == nil {
		return nil, fmt.Errorf("proof: writer is nil")
	}
	return i.issue(ctx, locator, w)
}

func (i *Issuer) issue(ctx context.Context, locator string, w io.Writer) (*Proof, error) {
	if err := i.policy.Validate(locator); err != nil {
		return nil, err
	}
	key := KeyOf(locator)
	if _, err := i.store.Get(ctx, key); err == nil {
		return nil, &ConflictError{Key: key}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	dataHash, err := i.hash(ctx, locator, w)
	if err != nil {
		i.logger.WarnContext(ctx, "proof fetch failed", "proof_key", key, "error", err)
		return nil, err
	}
	p := &Proof{Key: key, DataHash: dataHash}
	if err := i.store.Create(ctx, p); err != nil {
		return nil, err
	}
	i.logger.InfoContext(ctx, "proof issued", "proof_key", key, "data_hash", dataHash)
	return p, nil
}

func (i *Issuer) hash(ctx context.Context, locator string, w io.Writer) (string, error) {
	body, err := i.fetcher.Fetch(ctx, locator)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", err
		}
		return "", &FetchError{Locator: locator, Err: err}
	}
	defer body.Close()

	var content io.Reader = body
	if i.filter != nil {
		if content, err = i.filter.Apply(ctx, body); err != nil {
			return "", &FetchError{Locator: locator, Err: fmt.Errorf("filter: %w", err)}
		}
	}
	h := sha3.New256()
	var sink io.Writer = h
	if w != nil {
		sink = io.MultiWriter(h, w)
	}
	if _, err := io.Copy(sink, content); err != nil {
		return "", &FetchError{Locator: locator, Err: fmt.Errorf("read: %w", err)}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Lookup returns the proof stored under key, or ErrNotFound.
func (i *Issuer) Lookup(ctx context.Context, key string) (*Proof, error) {
	return i.store.Get(ctx, key)
}
