package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func ctxWithQuery(q string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/x?"+q, nil)
	return c
}

func TestParseDefaults(t *testing.T) {
	p := Parse(ctxWithQuery(""), "created_at", "desc", DefaultOpts)
	assert.Equal(t, Params{Page: 1, PerPage: 25, SortBy: "created_at", SortOrder: "desc"}, p)
	assert.Equal(t, 0, p.Offset())
}

func TestParseClampsAndWhitelists(t *testing.T) {
	p := Parse(ctxWithQuery("page=3&per_page=9999&sort_by=title;drop&order=ASC"), "created_at", "desc", DefaultOpts)
	assert.Equal(t, 200, p.Limit())
	assert.Equal(t, 400, p.Offset())
	assert.Equal(t, "created_at asc", p.OrderClause(map[string]string{"created_at": "created_at", "title": "title"}, "created_at"))
	assert.Equal(t, Meta{Page: 3, PerPage: 200, Total: 401, TotalPages: 3}, p.Meta(401))
}
