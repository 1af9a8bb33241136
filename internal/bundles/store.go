package bundles

import (
	"context"

	"github.com/villain-cms/villain/internal/datastore"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Collection is the default collection for bundle metadata.
const Collection = "bundles"

// Store persists bundle metadata, keyed by bundle name.
type Store struct {
	coll datastore.Collection
}

// NewStore creates a store over coll.
func NewStore(coll datastore.Collection) *Store {
	return &Store{coll: coll}
}

// Save upserts the metadata of spec.
func (s *Store) Save(ctx context.Context, spec *Specification) error {
	doc := datastore.Document(spec.ToMap())
	existing, err := s.coll.FindOne(ctx, datastore.Query{"name": spec.Name()})
	if err != nil {
		return verrors.StorageOperation("bundles.save", err).WithDetail("bundle", spec.Name())
	}
	if existing != nil {
		doc[datastore.IDField] = existing.ID()
	}
	if _, err := s.coll.Save(ctx, doc); err != nil {
		return verrors.StorageOperation("bundles.save", err).WithDetail("bundle", spec.Name())
	}
	return nil
}

// Load returns the stored specification or nil.
func (s *Store) Load(ctx context.Context, name string) (*Specification, error) {
	doc, err := s.coll.FindOne(ctx, datastore.Query{"name": name})
	if err != nil {
		return nil, verrors.StorageOperation("bundles.load", err).WithDetail("bundle", name)
	}
	if doc == nil {
		return nil, nil
	}
	return fromDocument(doc)
}

// LoadAll returns every stored specification sorted by name.
func (s *Store) LoadAll(ctx context.Context) ([]*Specification, error) {
	docs, err := s.coll.Find(ctx, datastore.Query{}, datastore.FindOptions{Sort: datastore.ParseSort("name")})
	if err != nil {
		return nil, verrors.StorageOperation("bundles.list", err)
	}
	out := make([]*Specification, 0, len(docs))
	for _, doc := range docs {
		spec, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// Remove deletes the metadata of name.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := s.coll.Remove(ctx, datastore.Query{"name": name}); err != nil {
		return verrors.StorageOperation("bundles.remove", err).WithDetail("bundle", name)
	}
	return nil
}

func fromDocument(doc datastore.Document) (*Specification, error) {
	spec := &Specification{}
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != datastore.IDField {
			data[k] = v
		}
	}
	if err := spec.FromMap(data); err != nil {
		return nil, err
	}
	return spec, nil
}
