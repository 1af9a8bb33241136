// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     content
// Description: Load, save, delete and find commands over the datastore
// License:     MIT
// ============================================================================

// Package content provides the CRUD commands that move Storable entities
// in and out of a datastore collection, firing lifecycle events around
// every operation.
package content

import (
	"fmt"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// DefaultCollection is used when a command gets no collection parameter.
const DefaultCollection = "content"

// Command targets
const (
	TargetLoad   = "content.Load"
	TargetSave   = "content.Save"
	TargetDelete = "content.Delete"
	TargetFind   = "content.Find"
)

// Commands builds the content commands over a set of datasources.
type Commands struct {
	Sources *datastore.Sources
	Logger  *logging.Logger
}

// Register adds the content commands to reg.
func (cc *Commands) Register(reg *chain.Registry) error {
	targets := map[string]chain.Factory{
		TargetLoad:   func() chain.Command { return chain.Func(loadDef(), cc.load) },
		TargetSave:   func() chain.Command { return chain.Func(saveDef(), cc.save) },
		TargetDelete: func() chain.Command { return chain.Func(deleteDef(), cc.delete) },
		TargetFind:   func() chain.Command { return chain.Func(findDef(), cc.find) },
	}
	for _, name := range []string{TargetLoad, TargetSave, TargetDelete, TargetFind} {
		if err := reg.Register(name, targets[name]); err != nil {
			return err
		}
	}
	return nil
}

// withStore declares the datasource and collection parameters every
// content command shares.
func withStore(d *chain.Definition, collection string) *chain.Definition {
	return d.
		UsesParam("datasource", "Name of the datasource. If none is given the default is used.").WithFilter("string").
		UsesParam("collection", "The collection holding the content.").WithFilter("string").HasDefault(collection)
}

// Collection resolves the datasource and collection parameters of inv.
func Collection(sources *datastore.Sources, p chain.Params, fallback string) (datastore.Collection, error) {
	if sources == nil {
		return nil, verrors.Configuration("no datasources configured")
	}
	ds, err := sources.Get(p.String("datasource"))
	if err != nil {
		return nil, err
	}
	name := p.String("collection")
	if name == "" {
		name = fallback
	}
	return ds.Collection(name), nil
}

// Decode turns a stored document back into a Storable. Documents saved
// from a typed entity carry its discriminator and come back as that type;
// everything else becomes a *storage.Object.
func Decode(doc datastore.Document) (storage.Storable, error) {
	if doc == nil {
		return nil, nil
	}
	m := map[string]any(doc)
	if _, typed := m[storage.AutocastKey]; typed {
		restored, err := storage.Restore(m)
		if err != nil {
			return nil, err
		}
		if s, ok := restored.(storage.Storable); ok {
			return s, nil
		}
	}
	return storage.NewFromMap(m)
}

// Encode returns the persisted form of s, tagged with its type.
func Encode(s storage.Storable) datastore.Document {
	return datastore.Document(storage.Project(s).(map[string]any))
}

func idParam(inv *chain.Invocation) (string, error) {
	id := inv.Params.String("id")
	if id == "" {
		return "", verrors.Validation(inv.Name, "id", "must not be empty")
	}
	return id, nil
}

func storableParam(inv *chain.Invocation, name string) (storage.Storable, error) {
	s, ok := inv.Params.Get(name).(storage.Storable)
	if !ok {
		return nil, verrors.Validation(inv.Name, name, fmt.Sprintf("%T is not Storable", inv.Params.Get(name)))
	}
	return s, nil
}
