package datastore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Postgres stores documents in a jsonb column. Queries are narrowed with the
// containment operator and then checked with Matches, so results agree with
// the other backends.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url and ensures the schema exists.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, verrors.Wrap(err, "invalid postgres url").WithCode(verrors.CodeConfiguration)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, verrors.StorageOperation("connect", err)
	}
	p := &Postgres{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, verrors.StorageOperation("init schema", err)
	}
	return p, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		return nil, verrors.StorageOperation("init schema", err)
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS villain_documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body JSONB NOT NULL,
			seq BIGSERIAL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_villain_documents_body ON villain_documents USING GIN (body);
	`)
	return err
}

// Collection returns the named collection.
func (p *Postgres) Collection(name string) Collection {
	return &postgresCollection{pool: p.pool, name: name}
}

// Ping checks the connection pool.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return verrors.StorageOperation("ping", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type postgresCollection struct {
	pool *pgxpool.Pool
	name string
}

func (c *postgresCollection) Name() string { return c.name }

func (c *postgresCollection) FindOne(ctx context.Context, q Query) (Document, error) {
	docs, err := c.Find(ctx, q, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *postgresCollection) Find(ctx context.Context, q Query, opts FindOptions) ([]Document, error) {
	nq, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}
	filter, err := json.Marshal(containment(nq))
	if err != nil {
		return nil, verrors.StorageOperation("find", err)
	}

	rows, err := c.pool.Query(ctx,
		`SELECT body FROM villain_documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY seq`,
		c.name, string(filter))
	if err != nil {
		return nil, verrors.StorageOperation("find", err).WithDetail("collection", c.name)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, verrors.StorageOperation("find", err).WithDetail("collection", c.name)
	}

	docs := make([]Document, 0, len(bodies))
	for _, body := range bodies {
		var doc Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, verrors.StorageOperation("decode", err).WithDetail("collection", c.name)
		}
		if Matches(doc, nq) {
			docs = append(docs, doc)
		}
	}
	return applyOptions(docs, opts), nil
}

func (c *postgresCollection) Save(ctx context.Context, doc Document) (Document, error) {
	stored, err := prepareSave(doc)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, verrors.StorageOperation("save", err)
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO villain_documents (collection, id, body)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		c.name, stored.ID(), string(body))
	if err != nil {
		return nil, verrors.StorageOperation("save", err).
			WithDetail("collection", c.name).
			WithDetail("id", stored.ID())
	}
	return stored, nil
}

func (c *postgresCollection) Remove(ctx context.Context, q Query) error {
	docs, err := c.Find(ctx, q, FindOptions{})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID()
	}
	if _, err := c.pool.Exec(ctx,
		`DELETE FROM villain_documents WHERE collection = $1 AND id = ANY($2)`,
		c.name, ids); err != nil {
		return verrors.StorageOperation("remove", err).WithDetail("collection", c.name)
	}
	return nil
}

// containment builds the jsonb @> prefilter for a normalized query. Dotted
// keys become nested objects and nil values are left out, since they also
// match a missing key. The filter may accept more documents than the query
// (arrays are contained in their supersets); Matches decides.
func containment(q Query) map[string]any {
	filter := make(map[string]any, len(q))
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// only maps built here are extended; query values stay untouched
	created := make(map[string]bool)
	for _, key := range keys {
		val := q[key]
		if val == nil {
			continue
		}
		parts := strings.Split(key, ".")
		cur := filter
		ok := true
		for i, part := range parts[:len(parts)-1] {
			prefix := strings.Join(parts[:i+1], ".")
			next, exists := cur[part]
			if !exists {
				m := make(map[string]any)
				cur[part] = m
				created[prefix] = true
				cur = m
				continue
			}
			m, isMap := next.(map[string]any)
			if !isMap || !created[prefix] {
				ok = false
				break
			}
			cur = m
		}
		last := parts[len(parts)-1]
		if _, taken := cur[last]; !ok || taken {
			continue
		}
		cur[last] = val
	}
	return filter
}
