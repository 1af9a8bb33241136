// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     datastore
// Description: Document store contract with memory, SQLite and Postgres backends
// License:     MIT
// ============================================================================

// Package datastore implements the minimal document-store contract the
// content commands rely on: named collections of JSON documents supporting
// findOne, find, save and remove with equality queries.
package datastore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/villain-cms/villain/pkg/core/config"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// IDField is the document identifier key.
const IDField = "_id"

// Document is a stored record.
type Document map[string]any

// ID returns the document identifier or "".
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Query matches documents whose fields equal every given value. Keys may
// use dotted paths into nested documents.
type Query map[string]any

// SortField orders results by one field.
type SortField struct {
	Field      string
	Descending bool
}

// FindOptions shapes the result of Find.
type FindOptions struct {
	// Fields limits the returned keys; _id is always included.
	Fields []string
	Sort   []SortField
	Limit  int
	Skip   int
}

// Collection is a named set of documents.
type Collection interface {
	Name() string
	FindOne(ctx context.Context, q Query) (Document, error)
	Find(ctx context.Context, q Query, opts FindOptions) ([]Document, error)
	Save(ctx context.Context, doc Document) (Document, error)
	Remove(ctx context.Context, q Query) error
}

// Datastore hands out collections.
type Datastore interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close() error
}

// NewID returns a 24 character hexadecimal document identifier.
func NewID() string {
	u, err := uuid.NewRandom()
	if err != nil {
		var b [12]byte
		_, _ = rand.Read(b[:])
		return hex.EncodeToString(b[:])
	}
	return hex.EncodeToString(u[:12])
}

// Open creates the datastore selected by cfg.
func Open(ctx context.Context, cfg config.DatastoreConfig, logger *logging.Logger) (Datastore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch cfg.Driver {
	case "", "memory":
		logger.Info("Using in-memory datastore")
		return NewMemory(), nil
	case "sqlite":
		logger.Info("Opening SQLite datastore", "path", cfg.Path)
		return NewSQLite(SQLiteConfig{Path: cfg.Path})
	case "postgres":
		logger.Info("Connecting to Postgres datastore")
		return NewPostgres(ctx, cfg.URL)
	default:
		return nil, verrors.Configuration(fmt.Sprintf("unknown datastore driver %q", cfg.Driver)).
			WithOperation("datastore.Open")
	}
}

// normalize gives every backend the same value representation by passing
// the document through JSON.
func normalize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func prepareSave(doc Document) (Document, error) {
	if doc == nil {
		return nil, verrors.New("cannot save a nil document").WithCode(verrors.CodeInvalidInput)
	}
	out, err := normalize(doc)
	if err != nil {
		return nil, verrors.StorageOperation("save", err)
	}
	if out.ID() == "" {
		out[IDField] = NewID()
	}
	return out, nil
}

func lookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Matches reports whether doc satisfies q. Both sides must already be in
// normalized form.
func Matches(doc Document, q Query) bool {
	for key, want := range q {
		got, ok := lookupPath(doc, key)
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !equalValues(got, want) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(aj) == string(bj)
}

func normalizeQuery(q Query) (Query, error) {
	if len(q) == 0 {
		return Query{}, nil
	}
	doc, err := normalize(q)
	if err != nil {
		return nil, verrors.Wrap(err, "invalid query").WithCode(verrors.CodeInvalidInput)
	}
	return Query(doc), nil
}

// applyOptions sorts, pages and projects an already filtered result.
func applyOptions(docs []Document, opts FindOptions) []Document {
	if len(opts.Sort) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			for _, s := range opts.Sort {
				a, _ := lookupPath(docs[i], s.Field)
				b, _ := lookupPath(docs[j], s.Field)
				c := compareValues(a, b)
				if c == 0 {
					continue
				}
				if s.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= len(docs) {
			docs = nil
		} else {
			docs = docs[opts.Skip:]
		}
	}
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}

	if len(opts.Fields) > 0 {
		projected := make([]Document, len(docs))
		for i, d := range docs {
			p := Document{IDField: d[IDField]}
			for _, f := range opts.Fields {
				if v, ok := d[f]; ok {
					p[f] = v
				}
			}
			projected[i] = p
		}
		docs = projected
	}
	return docs
}

// compareValues orders nil < numbers < strings < bools < everything else.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	default:
		return 4
	}
}

// ParseSort reads "field" / "-field" specifications.
func ParseSort(specs ...string) []SortField {
	var out []SortField
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.HasPrefix(s, "-") {
			out = append(out, SortField{Field: s[1:], Descending: true})
			continue
		}
		out = append(out, SortField{Field: strings.TrimPrefix(s, "+")})
	}
	return out
}
