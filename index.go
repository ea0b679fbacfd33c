package linematch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/oarkflow/squealx"
	"github.com/oarkflow/squealx/connection"

	"github.com/oarkflow/linematch/utils"
)

// DefaultMaxLineBytes bounds a single corpus line during a build.
const DefaultMaxLineBytes = 1 << 20

// Index is one immutable snapshot of the corpus: the deduplicated line set,
// a bloom filter over line hashes, and a hash-to-line table. Built in full
// by a Builder, never mutated afterwards; a reload produces a brand-new
// Index with the next generation number.
type Index struct {
	Generation uint64

	lines   map[string]struct{}
	byHash  map[uint64]string
	bloom   *BloomFilter
	builtAt time.Time
}

// Lookup reports whether query exists as an exact line in the corpus.
// The bloom filter short-circuits definite misses; a hash-table hit is
// confirmed with a byte-for-byte string comparison, so neither a bloom
// false positive nor a hash collision can be reported as a match.
func (idx *Index) Lookup(query string) bool {
	h := hashLine(query)
	if !idx.bloom.Has(h) {
		return false
	}
	stored, ok := idx.byHash[h]
	return ok && stored == query
}

// Len returns the number of distinct lines in the snapshot.
func (idx *Index) Len() int { return len(idx.lines) }

// BuiltAt returns when the snapshot finished building.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Bloom exposes the snapshot's bloom filter for introspection.
func (idx *Index) Bloom() *BloomFilter { return idx.bloom }

func hashLine(line string) uint64 {
	return xxhash.Sum64(utils.UnsafeBytes(line))
}

// add folds one raw corpus line into the snapshot during a build.
func (idx *Index) add(raw string) error {
	if !utf8.ValidString(raw) || strings.IndexByte(raw, 0) >= 0 {
		return ErrCorpusDecode
	}
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}
	if _, dup := idx.lines[line]; dup {
		return nil
	}
	h := hashLine(line)
	idx.lines[line] = struct{}{}
	idx.byHash[h] = line
	idx.bloom.Add(h)
	return nil
}

// DBConfig describes a database corpus source.
type DBConfig struct {
	DBType  string `json:"type,omitempty"`
	DBHost  string `json:"host,omitempty"`
	DBPort  int    `json:"port,omitempty"`
	DBUser  string `json:"user,omitempty"`
	DBPass  string `json:"password,omitempty"`
	DBName  string `json:"database,omitempty"`
	DBQuery string `json:"query,omitempty"`
	Column  string `json:"column,omitempty"`
}

// DBRequest carries an open database handle plus the row query that yields
// corpus lines. Column selects which row field holds the line; when empty a
// single-column row is used as-is.
type DBRequest struct {
	DB     *squealx.DB
	Query  string
	Column string
}

// Builder constructs Index snapshots. It is safe for concurrent use; each
// Build stamps the result with the next generation number.
type Builder struct {
	bloomBits    uint64
	maxLineBytes int
	generation   atomic.Uint64
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBloomBits overrides the bloom filter width.
func WithBloomBits(bits uint64) BuilderOption {
	return func(b *Builder) {
		b.bloomBits = bits
	}
}

// WithMaxLineBytes bounds the longest corpus line accepted during a build.
func WithMaxLineBytes(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxLineBytes = n
		}
	}
}

// NewBuilder returns a Builder with default bloom and line-length settings.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		bloomBits:    DefaultBloomBits,
		maxLineBytes: DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) newIndex() *Index {
	return &Index{
		Generation: b.generation.Add(1),
		lines:      make(map[string]struct{}),
		byHash:     make(map[uint64]string),
		bloom:      NewBloomFilter(b.bloomBits),
	}
}

// Build constructs a snapshot from any supported corpus source: a file path,
// raw bytes, an io.Reader, an open database request, or database connection
// settings.
func (b *Builder) Build(ctx context.Context, input any) (*Index, error) {
	switch v := input.(type) {
	case string:
		return b.BuildFromFile(ctx, v)
	case []byte:
		return b.BuildFromReader(ctx, bytes.NewReader(v))
	case io.Reader:
		return b.BuildFromReader(ctx, v)
	case DBRequest:
		return b.BuildFromDatabase(ctx, v)
	case *DBConfig:
		db, _, err := connection.FromConfig(squealx.Config{
			Host:     v.DBHost,
			Port:     v.DBPort,
			Driver:   v.DBType,
			Username: v.DBUser,
			Password: v.DBPass,
			Database: v.DBName,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: connecting to database: %v", ErrCorpusRead, err)
		}
		defer db.Close()
		return b.BuildFromDatabase(ctx, DBRequest{DB: db, Query: v.DBQuery, Column: v.Column})
	}
	return nil, fmt.Errorf("unsupported corpus source %T", input)
}

// BuildFromFile builds a snapshot from a newline-delimited text file.
func (b *Builder) BuildFromFile(ctx context.Context, path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusRead, err)
	}
	defer file.Close()
	return b.BuildFromReader(ctx, file)
}

// BuildFromReader builds a snapshot in a single linear pass over r.
func (b *Builder) BuildFromReader(ctx context.Context, r io.Reader) (*Index, error) {
	idx := b.newIndex()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), b.maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := idx.add(scanner.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusRead, err)
	}
	idx.builtAt = time.Now()
	return idx, nil
}

// BuildFromDatabase streams query rows into a snapshot, one line per row.
func (b *Builder) BuildFromDatabase(ctx context.Context, req DBRequest) (*Index, error) {
	if req.DB == nil {
		return nil, fmt.Errorf("no database provided")
	}
	if req.Query == "" {
		return nil, fmt.Errorf("no query provided")
	}
	idx := b.newIndex()
	err := squealx.SelectEach(req.DB, func(row map[string]any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := rowLine(row, req.Column)
		if !ok {
			return nil
		}
		return idx.add(line)
	}, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusRead, err)
	}
	idx.builtAt = time.Now()
	return idx, nil
}

func rowLine(row map[string]any, column string) (string, bool) {
	if column != "" {
		v, ok := row[column]
		if !ok {
			return "", false
		}
		return toLine(v), true
	}
	if len(row) == 1 {
		for _, v := range row {
			return toLine(v), true
		}
	}
	return "", false
}

func toLine(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
