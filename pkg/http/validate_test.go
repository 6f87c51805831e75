package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type quoteRequest struct {
	Symbol string `param:"symbol" validate:"required,max=12"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=100"`
	Body   struct {
		Price string `json:"price" validate:"required,numeric"`
	} `json:"body"`
}

func bindQuote(t *testing.T, target, body string) (*quoteRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("symbol")
	c.SetParamValues("BTCUSDT")

	out := &quoteRequest{}
	if verr := ReadAndValidateRequest(c, out); verr != nil {
		return out, verr.([]ValidationError)
	}
	return out, nil
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	got, verr := bindQuote(t, "/quotes/BTCUSDT", `{"body": {"price": "101.5"}}`)
	require.Nil(t, verr)
	require.Equal(t, "BTCUSDT", got.Symbol)
	require.Equal(t, 20, got.Limit)
}

func TestReadAndValidateRequestFieldPaths(t *testing.T) {
	_, verr := bindQuote(t, "/quotes/BTCUSDT?limit=500", `{"body": {"price": "abc"}}`)
	require.Len(t, verr, 2)

	byField := map[string]ValidationError{}
	for _, v := range verr {
		byField[v.Field] = v
	}
	require.Equal(t, "ERR_LTE", byField["limit"].Code)
	require.Equal(t, "100", byField["limit"].Params["max"])
	require.Equal(t, "ERR_NUMERIC", byField["body.price"].Code)
	require.Equal(t, "body.price must be a decimal number", byField["body.price"].Message)
}
