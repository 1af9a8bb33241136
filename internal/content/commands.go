package content

import (
	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

func loadDef() *chain.Definition {
	return withStore(chain.Describe("Load a piece of content from the repository.").
		UsesParam("id", "The ID of the content to load.").Required().WithFilter("string"), DefaultCollection).
		DeclaresEvent("preLoad", "Fired before loading. Handlers may change data[\"id\"].").
		DeclaresEvent("onLoad", "Fired after loading. Handlers may replace data[\"content\"].").
		DeclaresEvent("onNotFound", "Fired when no content has the ID.").
		Returns("A piece of content as a Storable, or nil.")
}

func (cc *Commands) load(inv *chain.Invocation) (any, error) {
	id, err := idParam(inv)
	if err != nil {
		return nil, err
	}
	coll, err := Collection(cc.Sources, inv.Params, DefaultCollection)
	if err != nil {
		return nil, err
	}

	e, err := inv.Fire("preLoad", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if s, ok := e.Data["id"].(string); ok {
		id = s
	}

	doc, err := coll.FindOne(inv.Ctx(), datastore.Query{datastore.IDField: id})
	if err != nil {
		return nil, verrors.StorageOperation("content.load", err).WithDetail("id", id)
	}
	if doc == nil {
		inv.Logger.Debug("Content not found", "id", id, "collection", coll.Name())
		if _, err := inv.Fire("onNotFound", map[string]any{"id": id}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	content, err := Decode(doc)
	if err != nil {
		return nil, verrors.Wrapf(err, "decode content %q", id).WithDetail("id", id)
	}
	e, err = inv.Fire("onLoad", map[string]any{"id": id, "content": content})
	if err != nil {
		return nil, err
	}
	if replaced, ok := e.Data["content"].(storage.Storable); ok {
		content = replaced
	}
	return content, nil
}

func saveDef() *chain.Definition {
	return withStore(chain.Describe("Save a piece of content.").
		UsesParam("content", "A Storable.").Required(), DefaultCollection).
		DeclaresEvent("preSave", "Fired before the object is saved. Handlers may replace data[\"content\"].").
		DeclaresEvent("onSave", "Fired after the object is saved.").
		DeclaresEvent("onSaveError", "Fired if the save failed.").
		Returns("The stored object, including its ID.")
}

func (cc *Commands) save(inv *chain.Invocation) (any, error) {
	content, err := storableParam(inv, "content")
	if err != nil {
		return nil, err
	}
	coll, err := Collection(cc.Sources, inv.Params, DefaultCollection)
	if err != nil {
		return nil, err
	}

	return Persist(inv, coll, "content", content)
}

// Persist saves s into coll and refreshes it from the stored document so
// the assigned _id becomes visible. It fires preSave, onSave and
// onSaveError; the entity travels in the event data under key.
func Persist(inv *chain.Invocation, coll datastore.Collection, key string, s storage.Storable) (storage.Storable, error) {
	e, err := inv.Fire("preSave", map[string]any{key: s})
	if err != nil {
		return nil, err
	}
	if replaced, ok := e.Data[key].(storage.Storable); ok {
		s = replaced
	}

	saved, err := coll.Save(inv.Ctx(), Encode(s))
	if err != nil {
		serr := verrors.StorageOperation(inv.Target, err).WithDetail("collection", coll.Name())
		inv.Logger.Error("Failed to write entity", "collection", coll.Name(), "error", err)
		if _, ferr := inv.Fire("onSaveError", map[string]any{key: s, "error": serr}); ferr != nil {
			inv.Logger.Warn("onSaveError handler failed", "error", ferr)
		}
		return nil, serr
	}

	data := make(map[string]any, len(saved))
	for k, v := range saved {
		if k != storage.AutocastKey {
			data[k] = v
		}
	}
	if err := s.FromMap(data); err != nil {
		return nil, verrors.Wrap(err, "refresh saved entity")
	}

	if _, err := inv.Fire("onSave", map[string]any{key: s, "id": saved.ID()}); err != nil {
		return nil, err
	}
	return s, nil
}

func deleteDef() *chain.Definition {
	return withStore(chain.Describe("Deletes the content with the given ID.").
		UsesParam("id", "The ID of the content to delete.").Required().WithFilter("string"), DefaultCollection).
		DeclaresEvent("preDelete", "Fired before delete. Handlers may change data[\"query\"].").
		DeclaresEvent("onDelete", "Fired after the delete ONLY IF it succeeded.").
		DeclaresEvent("onDeleteError", "Fired after the delete ONLY IF it failed.").
		Returns("true on success.")
}

func (cc *Commands) delete(inv *chain.Invocation) (any, error) {
	id, err := idParam(inv)
	if err != nil {
		return nil, err
	}
	coll, err := Collection(cc.Sources, inv.Params, DefaultCollection)
	if err != nil {
		return nil, err
	}

	query := datastore.Query{datastore.IDField: id}
	e, err := inv.Fire("preDelete", map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	if q, ok := e.Data["query"].(datastore.Query); ok {
		query = q
	}

	if err := coll.Remove(inv.Ctx(), query); err != nil {
		serr := verrors.StorageOperation("content.delete", err).WithDetail("id", id)
		inv.Logger.Error("Failed to delete", "id", id, "collection", coll.Name(), "error", err)
		if _, ferr := inv.Fire("onDeleteError", map[string]any{"query": query, "error": serr}); ferr != nil {
			inv.Logger.Warn("onDeleteError handler failed", "error", ferr)
		}
		return nil, serr
	}

	if _, err := inv.Fire("onDelete", map[string]any{"query": query}); err != nil {
		return nil, err
	}
	return true, nil
}

func findDef() *chain.Definition {
	return chain.Describe("Executes a query with the given filter.").
		UsesParam("filter", "Equality filter as a map of field to value.").Required().
		UsesParam("fields", "The list of fields to return.").
		UsesParam("sort", "Sort fields, \"-field\" for descending.").
		UsesParam("limit", "Maximum number of items to return; 0 is unlimited.").WithFilter("int").HasDefault(0).
		UsesParam("skip", "Number of items to skip.").WithFilter("int").HasDefault(0).
		UsesParam("datasource", "Name of the datasource.").WithFilter("string").
		UsesParam("collection", "The name of the collection.").Required().WithFilter("string").
		Returns("A list of Storables.")
}

func (cc *Commands) find(inv *chain.Invocation) (any, error) {
	filter := inv.Params.Map("filter")
	if q, ok := inv.Params.Get("filter").(datastore.Query); ok {
		filter = q
	}
	if filter == nil {
		return nil, verrors.Validation(inv.Name, "filter", "must be a map")
	}
	coll, err := Collection(cc.Sources, inv.Params, "")
	if err != nil {
		return nil, err
	}

	opts := datastore.FindOptions{
		Fields: inv.Params.Strings("fields"),
		Sort:   sortParam(inv.Params),
		Limit:  inv.Params.Int("limit", 0),
		Skip:   inv.Params.Int("skip", 0),
	}
	docs, err := coll.Find(inv.Ctx(), datastore.Query(filter), opts)
	if err != nil {
		return nil, verrors.StorageOperation("content.find", err).WithDetail("collection", coll.Name())
	}

	out := make([]storage.Storable, 0, len(docs))
	for _, doc := range docs {
		s, err := Decode(doc)
		if err != nil {
			return nil, verrors.Wrapf(err, "decode %s", doc.ID())
		}
		out = append(out, s)
	}
	return out, nil
}

// sortParam accepts ["-date", "title"] or {"date": -1, "title": 1}.
func sortParam(p chain.Params) []datastore.SortField {
	if m := p.Map("sort"); m != nil {
		var fields []datastore.SortField
		for _, name := range chain.Params(m).Names() {
			dir := chain.Params(m).Int(name, 1)
			fields = append(fields, datastore.SortField{Field: name, Descending: dir < 0})
		}
		return fields
	}
	return datastore.ParseSort(p.Strings("sort")...)
}
