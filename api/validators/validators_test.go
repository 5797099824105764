package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Total *int64 `json:"total" validate:"required,min=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	var ok sample
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","total":0}`))
	require.NoError(t, DecodeJSONBody(httptest.NewRecorder(), r, &ok))
	assert.EqualValues(t, 0, *ok.Total)

	cases := []string{
		`{"name":"a"}`,
		`{"name":"a","total":-1}`,
		`{"name":"a","total":1.5}`,
		`{"name":"a","total":1,"extra":true}`,
		`not json`,
	}
	for _, body := range cases {
		var dest sample
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), body)
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	err := ValidateStruct(&sample{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details := typed.Details().(map[string]string)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "is required", details["total"])
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&bad=x", nil)
	v, err := ParseQueryInt(r, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = ParseQueryInt(r, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = ParseQueryInt(r, "bad", 25, 1, 100)
	assert.Error(t, err)
}

func TestParseUUIDParam(t *testing.T) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", "not-a-uuid")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	_, err := ParseUUIDParam(r, "orderId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "bUPS/b", SanitizeString("  <b>UPS</b>\x00 ", 64))
	assert.Equal(t, "åbc", SanitizeString("åbcdef", 3))
	assert.Equal(t, "", SanitizeString(" \t\n", 10))
}
