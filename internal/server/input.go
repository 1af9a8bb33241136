package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/villain-cms/villain/internal/chain"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// httpInput serves get, post, cookie and header sources from one HTTP
// request. A JSON body feeds the post source.
type httpInput struct {
	c    *gin.Context
	json map[string]any
}

func newHTTPInput(c *gin.Context) (*httpInput, error) {
	in := &httpInput{c: c}
	if c.Request.Method == "POST" && c.ContentType() == binding.MIMEJSON && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in.json); err != nil {
			return nil, verrors.Wrap(err, "malformed JSON body").WithCode(verrors.CodeInvalidInput)
		}
	}
	return in, nil
}

// Lookup implements chain.Input
func (in *httpInput) Lookup(kind, key string) (any, bool) {
	switch kind {
	case chain.SourceGet:
		return in.c.GetQuery(key)
	case chain.SourcePost:
		if in.json != nil {
			v, ok := in.json[key]
			return v, ok
		}
		return in.c.GetPostForm(key)
	case chain.SourceRequest:
		if v, ok := in.Lookup(chain.SourceGet, key); ok {
			return v, true
		}
		return in.Lookup(chain.SourcePost, key)
	case chain.SourceCookie:
		v, err := in.c.Cookie(key)
		if err != nil {
			return nil, false
		}
		return v, true
	case chain.SourceHeader:
		values := in.c.Request.Header.Values(key)
		if len(values) == 0 {
			return nil, false
		}
		return strings.Join(values, ", "), true
	}
	return nil, false
}
