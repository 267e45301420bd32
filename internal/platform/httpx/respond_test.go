package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

func TestListCarriesPageMetadata(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []string{"a", "b"}, 45, 20, 20)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data []string          `json:"data"`
		Meta shared.Pagination `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, []string{"a", "b"}, envelope.Data)
	require.Equal(t, 2, envelope.Meta.Page)
	require.Equal(t, 20, envelope.Meta.PerPage)
	require.Equal(t, 45, envelope.Meta.Total)
	require.Equal(t, 3, envelope.Meta.TotalPages)
}

func TestListDefaultsZeroLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []string{}, 0, 0, 0)

	var envelope struct {
		Meta shared.Pagination `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, 1, envelope.Meta.Page)
	require.Equal(t, 20, envelope.Meta.PerPage)
	require.Equal(t, 0, envelope.Meta.TotalPages)
}

func TestPaginationFromQueryCapsPerPage(t *testing.T) {
	req := shared.PaginationFromQuery(url.Values{"page": {"3"}, "per_page": {"500"}})
	require.Equal(t, 3, req.Page)
	require.Equal(t, 100, req.Limit)
	require.Equal(t, 200, req.Offset())
}
