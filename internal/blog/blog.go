// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     blog
// Description: The BasicBlog bundle: blog and entry content types
// License:     MIT
// ============================================================================

// Package blog implements the BasicBlog bundle. It declares the bundle
// specification, the Blog and Entry content types and the commands that
// build them from request parameters, ready for content.Save.
package blog

import (
	"github.com/villain-cms/villain/internal/bundles"
	"github.com/villain-cms/villain/internal/content/types"
	"github.com/villain-cms/villain/internal/storage"
)

// Bundle identity
const (
	BundleName    = "BasicBlog"
	BundleVersion = "1.0.0"
)

// Storable discriminators
const (
	BlogType  = "blog.Blog"
	EntryType = "blog.Entry"
)

// Workflow states of an entry
const (
	StatusDraft       = "draft"
	StatusPublished   = "published"
	StatusUnpublished = "unpublished"
)

func init() {
	storage.RegisterType(BlogType, func() storage.Storable { return &Blog{Decorator: storage.NewDecorator(nil)} })
	storage.RegisterType(EntryType, func() storage.Storable { return &Entry{Decorator: storage.NewDecorator(nil)} })
}

// Bundle returns the BasicBlog specification.
func Bundle() *bundles.Specification {
	return bundles.NewSpecification(BundleName).
		Describe("A simple blog with entries, teasers and tags.").
		Version(BundleVersion).
		DependsOn(bundles.CoreBundle, "0.1.0", "").
		DependsOn(bundles.CapabilityFilters, "", "").
		Provides("blog")
}

// Blog is a blog's settings.
type Blog struct {
	storage.Decorator
}

// StorableType implements storage.Typed.
func (b *Blog) StorableType() string { return BlogType }

// Title returns the blog title.
func (b *Blog) Title() string { return b.GetString("title") }

// ShortName returns the URL name of the blog.
func (b *Blog) ShortName() string { return b.GetString("shortName") }

// Entry is one post of a blog.
type Entry struct {
	storage.Decorator
}

// StorableType implements storage.Typed.
func (e *Entry) StorableType() string { return EntryType }

// Title returns the entry title.
func (e *Entry) Title() string { return e.GetString("title") }

// Status returns the workflow status.
func (e *Entry) Status() string { return e.GetString("workflowStatus") }

// Published reports whether the entry is visible to readers.
func (e *Entry) Published() bool { return e.Status() == StatusPublished }

// EntryDefinition is the content type of blog entries.
func EntryDefinition() *types.TypeDefinition {
	title := types.NewString("title", "Title")
	title.SetMaxLength(255)
	title.SetRepeats(1, 1)

	teaser := types.NewString("teaser", "Teaser")
	teaser.SetMaxLength(1024)

	tags := types.NewString("tags", "Tags")
	tags.SetMaxLength(64)
	tags.SetRepeats(types.Unbounded, 0)

	body := types.NewString("body", "Body")

	status := types.NewListMember("workflowStatus", "Status", StatusDraft, StatusPublished, StatusUnpublished)
	status.SetDefault(StatusDraft)

	createdOn := types.NewTimestamp("createdOn", "Created on")
	updatedOn := types.NewTimestamp("updatedOn", "Updated on")

	createdBy := types.NewString("createdBy", "Created by")
	createdBy.SetDefault("?")

	blogRef := types.NewMongoID("blog", "Blog")
	blogRef.SetRepeats(1, 1)

	return types.NewTypeDefinition(EntryType, "Blog Entry").
		MustAddField(title).
		MustAddField(teaser).
		MustAddField(tags).
		MustAddField(body).
		MustAddField(status).
		MustAddField(createdOn).
		MustAddField(updatedOn).
		MustAddField(createdBy).
		MustAddField(blogRef)
}
