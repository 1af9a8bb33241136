package blog

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/villain-cms/villain/internal/chain"
	"github.com/villain-cms/villain/internal/filters"
	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Command targets
const (
	TargetCreate      = "blog.Create"
	TargetCreateEntry = "blog.CreateEntry"
)

// DefaultMarkupChain filters descriptions, footers and entry bodies.
const DefaultMarkupChain = "safeHTML"

// MaxTitleLength is the longest accepted title after markup removal.
const MaxTitleLength = 255

// Commands builds the blog commands. Filters supplies the filter manager
// when a request does not pass one in.
type Commands struct {
	Filters *filters.Commands
}

// Register adds the blog commands to reg.
func (bc *Commands) Register(reg *chain.Registry) error {
	if err := reg.Register(TargetCreate, func() chain.Command {
		return chain.Func(createDef(), bc.create)
	}); err != nil {
		return err
	}
	return reg.Register(TargetCreateEntry, func() chain.Command {
		return chain.Func(createEntryDef(), bc.createEntry)
	})
}

func createDef() *chain.Definition {
	return chain.Describe("Create a new blog.").
		UsesParam("title", "The title of this blog. Markup removed.").Required().WithFilter("string").
		UsesParam("subtitle", "The subtitle of this blog.").WithFilter("string").HasDefault("").
		UsesParam("shortName", "The URL name of this blog. Valid characters: a-z, A-Z, 0-9 and -.").
		Required().WithFilter("string").WithFilter("regexp:^[a-zA-Z0-9-]+$").
		UsesParam("descriptionFilter", "The filter chain applied to the description and footer.").
		WithFilter("string").HasDefault(DefaultMarkupChain).
		UsesParam("description", "A description of this blog. May contain markup.").WithFilter("string").HasDefault("").
		UsesParam("footer", "The footer. Filtered like the description.").WithFilter("string").HasDefault("").
		UsesParam("entriesPerPage", "Number of entries per page of the blog.").WithFilter("int").HasDefault(10).
		UsesParam("showFullArticle", "Whether or not to show the full article.").WithFilter("boolean").HasDefault(true).
		UsesParam("createdOn", "Creation time. A timestamp or any recognizable date. Defaults to the request time.").WithFilter("date").
		UsesParam("updatedOn", "Update time. A timestamp or any recognizable date. Defaults to the request time.").WithFilter("date").
		UsesParam("createdBy", "The username of the user who created this.").WithFilter("string").HasDefault("?").
		UsesParam("filters", "A filter manager, usually from filters.Initialize.").
		UsesParam("datasource", "Datasource of the filter chains when no manager is given.").WithFilter("string").
		Returns("A *Blog ready for content.Save.")
}

func (bc *Commands) create(inv *chain.Invocation) (any, error) {
	title, err := cleanTitle(inv)
	if err != nil {
		return nil, err
	}

	markup, err := bc.markup(inv, inv.Params.String("descriptionFilter"))
	if err != nil {
		return nil, err
	}
	description, err := markup(inv.Params.String("description"))
	if err != nil {
		return nil, err
	}
	footer, err := markup(inv.Params.String("footer"))
	if err != nil {
		return nil, err
	}

	b := &Blog{Decorator: storage.NewDecorator(nil)}
	b.Set("title", title)
	b.Set("subtitle", plaintext(inv.Params.String("subtitle")))
	b.Set("shortName", inv.Params.String("shortName"))
	b.Set("descriptionFilter", inv.Params.String("descriptionFilter"))
	b.Set("description", description)
	b.Set("footer", footer)
	b.Set("entriesPerPage", inv.Params.Int("entriesPerPage", 10))
	b.Set("showFullArticle", inv.Params.Bool("showFullArticle"))
	b.Set("createdOn", timeParam(inv, "createdOn"))
	b.Set("updatedOn", timeParam(inv, "updatedOn"))
	b.Set("createdBy", inv.Params.String("createdBy"))
	return b, nil
}

func createEntryDef() *chain.Definition {
	return chain.Describe("Create a blog entry.").
		UsesParam("title", "The title of the blog entry. Markup removed.").Required().WithFilter("string").
		UsesParam("teaser", "The teaser for the blog post.").WithFilter("string").
		UsesParam("tags", "A list of tags associated with this blog post.").
		UsesParam("body", "The blog post content. May contain markup.").WithFilter("string").
		UsesParam("bodyFilter", "The filter chain applied to teaser and body.").WithFilter("string").HasDefault(DefaultMarkupChain).
		UsesParam("workflowStatus", "The status: draft, published or unpublished.").WithFilter("string").
		UsesParam("createdOn", "Creation time. Defaults to the request time.").
		UsesParam("updatedOn", "Update time. Defaults to the request time.").
		UsesParam("createdBy", "The username for the user that created this.").WithFilter("string").
		UsesParam("blog", "The id of the blog this entry belongs to.").Required().WithFilter("string").
		UsesParam("filters", "A filter manager, usually from filters.Initialize.").
		UsesParam("datasource", "Datasource of the filter chains when no manager is given.").WithFilter("string").
		Returns("A *Entry ready for content.Save.")
}

func (bc *Commands) createEntry(inv *chain.Invocation) (any, error) {
	title, err := cleanTitle(inv)
	if err != nil {
		return nil, err
	}
	markup, err := bc.markup(inv, inv.Params.String("bodyFilter"))
	if err != nil {
		return nil, err
	}

	doc := map[string]any{"title": title, "blog": inv.Params.String("blog")}
	for _, name := range []string{"teaser", "body"} {
		if !inv.Params.Has(name) {
			continue
		}
		v, err := markup(inv.Params.String(name))
		if err != nil {
			return nil, err
		}
		doc[name] = v
	}
	if tags := inv.Params.Strings("tags"); len(tags) > 0 {
		list := make([]any, len(tags))
		for i, t := range tags {
			list[i] = plaintext(t)
		}
		doc["tags"] = list
	}
	for _, name := range []string{"workflowStatus", "createdBy", "createdOn", "updatedOn"} {
		if inv.Params.Has(name) {
			doc[name] = inv.Params.Get(name)
		}
	}
	for _, name := range []string{"createdOn", "updatedOn"} {
		if _, ok := doc[name]; !ok {
			doc[name] = inv.Context.StartTime.Unix()
		}
	}

	normalized, err := EntryDefinition().Normalize(doc)
	if err != nil {
		return nil, verrors.Wrap(err, "invalid blog entry").WithDetail("command", inv.Name)
	}
	e := &Entry{Decorator: storage.NewDecorator(nil)}
	if err := e.FromMap(normalized); err != nil {
		return nil, err
	}
	return e, nil
}

func cleanTitle(inv *chain.Invocation) (string, error) {
	title := plaintext(inv.Params.String("title"))
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		return "", verrors.Validation(inv.Name, "title", "title is required")
	case n > MaxTitleLength:
		return "", verrors.Validation(inv.Name, "title", fmt.Sprintf("title is too long (%d characters, at most %d)", n, MaxTitleLength))
	}
	return title, nil
}

var plaintextFilter filters.Filter

func init() {
	f, err := filters.NewRegistry().New(filters.Plaintext, nil)
	if err != nil {
		panic(err)
	}
	plaintextFilter = f
}

func plaintext(s string) string {
	return plaintextFilter.Run(s)
}

// markup returns a function running values through the named chain.
// Empty values are not filtered.
func (bc *Commands) markup(inv *chain.Invocation, chainName string) (func(string) (string, error), error) {
	var m *filters.Manager
	switch v := inv.Params.Get("filters").(type) {
	case *filters.Manager:
		m = v
	case nil:
		if bc.Filters == nil {
			return nil, verrors.Configuration("blog commands need a filter manager")
		}
		var err error
		if m, err = bc.Filters.Manager(inv.Params.String("datasource"), ""); err != nil {
			return nil, err
		}
	default:
		return nil, verrors.Validation(inv.Name, "filters", fmt.Sprintf("expected a filter manager, got %T", v))
	}

	return func(value string) (string, error) {
		if value == "" {
			return "", nil
		}
		return m.Run(inv.Ctx(), chainName, value)
	}, nil
}

func timeParam(inv *chain.Invocation, name string) int64 {
	if t, ok := inv.Params.Get(name).(time.Time); ok {
		return t.Unix()
	}
	return inv.Context.StartTime.Unix()
}
