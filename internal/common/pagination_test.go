package common_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-terminal/internal/common"
)

func TestParsePage(t *testing.T) {
	page := common.ParsePage(httptest.NewRequest("GET", "/api/v1/products", nil), 100, 500)
	require.Equal(t, common.Page{Number: 1, Size: 100}, page)
	require.Zero(t, page.Offset())

	page = common.ParsePage(httptest.NewRequest("GET", "/api/v1/products?page=3&limit=20", nil), 100, 500)
	require.Equal(t, 40, page.Offset())

	page = common.ParsePage(httptest.NewRequest("GET", "/api/v1/products?page=-2&limit=9000", nil), 100, 500)
	require.Equal(t, common.Page{Number: 1, Size: 500}, page)
}

func TestPageMeta(t *testing.T) {
	meta := common.Page{Number: 2, Size: 20}.Meta(41)
	require.Equal(t, common.Pagination{Page: 2, PerPage: 20, TotalItems: 41, TotalPages: 3}, meta)
	require.Zero(t, common.Page{Number: 1, Size: 20}.Meta(0).TotalPages)
}
