// Package zipfilter rewrites address columns of CSV files inside zip archives
// into postal codes before the archive is hashed.
package zipfilter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/viant/sqlite-minhash/geocode"
	"github.com/viant/sqlite-minhash/proof"
)

const (
	// DefaultMaxArchiveSize bounds the archive read into memory.
	DefaultMaxArchiveSize int64 = 512 << 20

	defaultParallelism = 4
)

// DefaultColumns are the address columns of Amazon order history exports.
var DefaultColumns = []string{"Shipping Address", "Billing Address"}

// Config selects what the filter rewrites.
type Config struct {
	// Columns are CSV header names whose cells are replaced by postal codes.
	Columns []string
	// Pattern is a path.Match glob selecting archive entries; empty means "*.csv".
	Pattern        string
	MaxArchiveSize int64
	Parallelism    int
	Logger         *slog.Logger
}

// Filter is a proof.Filter rewriting address cells through a Geocoder.
type Filter struct {
	geocoder geocode.Geocoder
	columns  map[string]bool
	pattern  string
	maxSize  int64
	parallel int
	logger   *slog.Logger
}

// New creates a Filter.
func New(g geocode.Geocoder, cfg Config) (*Filter, error) {
	if g == nil {
		return nil, errors.New("zipfilter: geocoder is nil")
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = DefaultColumns
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*.csv"
	}
	if _, err := path.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("zipfilter: pattern %q: %w", cfg.Pattern, err)
	}
	if cfg.MaxArchiveSize <= 0 {
		cfg.MaxArchiveSize = DefaultMaxArchiveSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := &Filter{
		geocoder: g,
		columns:  make(map[string]bool, len(cfg.Columns)),
		pattern:  cfg.Pattern,
		maxSize:  cfg.MaxArchiveSize,
		parallel: cfg.Parallelism,
		logger:   cfg.Logger,
	}
	for _, c := range cfg.Columns {
		f.columns[strings.TrimSpace(c)] = true
	}
	return f, nil
}

// Apply reads the whole archive, rewrites matching entries and returns the
// new archive. Entries that do not match are copied without recompression.
func (f *Filter) Apply(ctx context.Context, in io.Reader) (io.Reader, error) {
	data, err := io.ReadAll(io.LimitReader(in, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("zipfilter: read archive: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("zipfilter: archive exceeds %d bytes", f.maxSize)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("zipfilter: open archive: %w", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !f.matches(entry) {
			if err := zw.Copy(entry); err != nil {
				return nil, fmt.Errorf("zipfilter: copy %s: %w", entry.Name, err)
			}
			continue
		}
		if err := f.rewriteEntry(ctx, zw, entry); err != nil {
			return nil, fmt.Errorf("zipfilter: rewrite %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zipfilter: finish archive: %w", err)
	}
	return &out, nil
}

func (f *Filter) matches(entry *zip.File) bool {
	if entry.FileInfo().IsDir() {
		return false
	}
	ok, _ := path.Match(f.pattern, path.Base(entry.Name))
	return ok
}

func (f *Filter) rewriteEntry(ctx context.Context, zw *zip.Writer, entry *zip.File) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	records, err := readCSV(rc)
	rc.Close()
	if err != nil {
		return err
	}
	if err := f.rewrite(ctx, records); err != nil {
		return err
	}

	header := entry.FileHeader
	w, err := zw.CreateHeader(&header)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

// rewrite replaces the selected cells of records in place. The first record
// is the header.
func (f *Filter) rewrite(ctx context.Context, records [][]string) error {
	if len(records) == 0 {
		return nil
	}
	var targets []int
	for i, name := range records[0] {
		if f.columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	codes := make(map[string]string)
	for _, row := range records[1:] {
		for _, col := range targets {
			if col < len(row) && strings.TrimSpace(row[col]) != "" {
				codes[row[col]] = ""
			}
		}
	}
	if err := f.resolve(ctx, codes); err != nil {
		return err
	}
	for _, row := range records[1:] {
		for _, col := range targets {
			if col < len(row) {
				row[col] = codes[row[col]]
			}
		}
	}
	return nil
}

// resolve fills codes with the postal code of every address key. Addresses
// without a postal code become empty so no free text survives.
func (f *Filter) resolve(ctx context.Context, codes map[string]string) error {
	addresses := make([]string, 0, len(codes))
	for a := range codes {
		addresses = append(addresses, a)
	}
	resolved := make([]string, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)
	for i, address := range addresses {
		g.Go(func() error {
			code, err := f.geocoder.PostalCode(gctx, address)
			switch {
			case err == nil:
				resolved[i] = code
			case errors.Is(err, geocode.ErrNoResult):
				f.logger.DebugContext(gctx, "address has no postal code")
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("geocode: %w", err)
	}
	for i, a := range addresses {
		codes[a] = resolved[i]
	}
	return nil
}

var _ proof.Filter = (*Filter)(nil)
