package user

import (
	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/content"
	"github.com/villain-cms/villain/internal/datastore"
	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// DefaultCollection holds user accounts.
const DefaultCollection = "users"

// Command targets
const (
	TargetLoad         = "user.Load"
	TargetHas          = "user.Has"
	TargetSave         = "user.Save"
	TargetDelete       = "user.Delete"
	TargetAuthenticate = "user.Authenticate"
)

// Commands builds the user commands.
type Commands struct {
	Sources *datastore.Sources
	Tokens  *Tokens
	Logger  *logging.Logger
}

// Register adds the user commands to reg.
func (uc *Commands) Register(reg *chain.Registry) error {
	for _, t := range []struct {
		name string
		def  func() *chain.Definition
		fn   func(*chain.Invocation) (any, error)
	}{
		{TargetLoad, loadDef, uc.load},
		{TargetHas, hasDef, uc.has},
		{TargetSave, saveDef, uc.save},
		{TargetDelete, deleteDef, uc.delete},
		{TargetAuthenticate, authDef, uc.authenticate},
	} {
		if err := reg.Register(t.name, func() chain.Command { return chain.Func(t.def(), t.fn) }); err != nil {
			return err
		}
	}
	return nil
}

func store(d *chain.Definition) *chain.Definition {
	return d.
		UsesParam("datasource", "The name of the datasource.").WithFilter("string").
		UsesParam("collection", "The collection holding users.").WithFilter("string").HasDefault(DefaultCollection)
}

func usernameDef(description string) *chain.Definition {
	return store(chain.Describe(description).
		UsesParam("username", "The username").Required().WithFilter("string"))
}

// find loads the account with username, or nil.
func (uc *Commands) find(inv *chain.Invocation, username string) (*User, error) {
	coll, err := content.Collection(uc.Sources, inv.Params, DefaultCollection)
	if err != nil {
		return nil, err
	}
	doc, err := coll.FindOne(inv.Ctx(), datastore.Query{fieldUsername: username})
	if err != nil {
		return nil, verrors.StorageOperation(inv.Target, err).WithDetail("username", username)
	}
	if doc == nil {
		return nil, nil
	}
	return FromDocument(doc)
}

// FromDocument rebuilds a User from a stored document, whether or not it
// was saved with a type tag.
func FromDocument(doc datastore.Document) (*User, error) {
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != storage.AutocastKey {
			data[k] = v
		}
	}
	u := &User{Decorator: storage.NewDecorator(nil)}
	if err := u.FromMap(data); err != nil {
		return nil, err
	}
	return u, nil
}

func loadDef() *chain.Definition {
	return usernameDef("Load a user").Returns("A *User, or nil when there is no such account.")
}

func (uc *Commands) load(inv *chain.Invocation) (any, error) {
	u, err := uc.find(inv, inv.Params.String("username"))
	if err != nil || u == nil {
		return nil, err
	}
	return u, nil
}

func hasDef() *chain.Definition {
	return usernameDef("Check to see if a user exists with this account.").
		DeclaresEvent("preSearch", "Fired before looking up the user. Handlers may change data[\"username\"].").
		Returns("true if the user exists.")
}

func (uc *Commands) has(inv *chain.Invocation) (any, error) {
	username := inv.Params.String("username")
	e, err := inv.Fire("preSearch", map[string]any{"username": username, "commandName": inv.Name})
	if err != nil {
		return nil, err
	}
	if s, ok := e.Data["username"].(string); ok {
		username = s
	}
	u, err := uc.find(inv, username)
	if err != nil {
		return nil, err
	}
	return u != nil, nil
}

func saveDef() *chain.Definition {
	return store(chain.Describe("Saves a user.").
		UsesParam("user", "The *User to store.").Required()).
		DeclaresEvent("preSave", "Fires before the user is saved.").
		DeclaresEvent("onSave", "Fires after the user is saved.").
		DeclaresEvent("onSaveError", "Fires if the save failed.").
		Returns("The saved user.")
}

func (uc *Commands) save(inv *chain.Invocation) (any, error) {
	u, ok := inv.Params.Get("user").(*User)
	if !ok {
		return nil, verrors.Validation(inv.Name, "user", "attempted to store an entity that is not a user")
	}
	if u.Username() == "" {
		return nil, verrors.Validation(inv.Name, "user", "user must have a username")
	}

	existing, err := uc.find(inv, u.Username())
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID() != u.ID() {
		return nil, verrors.Validation(inv.Name, "user", "username "+u.Username()+" is taken")
	}

	coll, err := content.Collection(uc.Sources, inv.Params, DefaultCollection)
	if err != nil {
		return nil, err
	}
	return content.Persist(inv, coll, "user", u)
}

func deleteDef() *chain.Definition {
	return usernameDef("Deletes the user with the given username.").Returns("true on success.")
}

func (uc *Commands) delete(inv *chain.Invocation) (any, error) {
	coll, err := content.Collection(uc.Sources, inv.Params, DefaultCollection)
	if err != nil {
		return nil, err
	}
	username := inv.Params.String("username")
	if err := coll.Remove(inv.Ctx(), datastore.Query{fieldUsername: username}); err != nil {
		return nil, verrors.StorageOperation(inv.Target, err).WithDetail("username", username)
	}
	return true, nil
}

func authDef() *chain.Definition {
	return usernameDef("Checks a password and issues a login token.").
		UsesParam("password", "The plain text password.").Required().WithFilter("string").
		DeclaresEvent("onLogin", "Fired after a successful login.").
		DeclaresEvent("onLoginFailure", "Fired when the credentials are rejected.").
		Returns("A signed JWT.")
}

func (uc *Commands) authenticate(inv *chain.Invocation) (any, error) {
	if uc.Tokens == nil {
		return nil, verrors.Configuration("user.Authenticate needs a token issuer")
	}
	username := inv.Params.String("username")
	u, err := uc.find(inv, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.CheckPassword(inv.Params.String("password")) {
		inv.Logger.Info("Login rejected", "username", username)
		if _, err := inv.Fire("onLoginFailure", map[string]any{"username": username}); err != nil {
			return nil, err
		}
		return nil, verrors.New("invalid username or password").
			WithCode(verrors.CodeUnauthorized).
			WithDetail("username", username)
	}

	token, err := uc.Tokens.Issue(inv.Ctx(), u)
	if err != nil {
		return nil, err
	}
	if _, err := inv.Fire("onLogin", map[string]any{"user": u}); err != nil {
		return nil, err
	}
	return token, nil
}
