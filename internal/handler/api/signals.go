package api

import (
	"context"
	"errors"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/service/marketdata"
	"SignalDesk/internal/service/metrics"
	"SignalDesk/internal/services/features"
	"SignalDesk/internal/services/signal"
	xhttp "SignalDesk/pkg/http"
	xlogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"

	"github.com/labstack/echo/v4"
)

// SignalService is what the handlers need from the evaluate use case.
type SignalService interface {
	Stateless(s models.IndicatorSnapshot, p *models.ThresholdProfile, prior models.EMAState) (models.SignalResult, error)
	AnalyzeInstrument(ctx context.Context, in models.Instrument) (models.Evaluation, error)
	Profiles() map[models.MarketClass]models.ThresholdProfile
}

type SignalsHandler struct {
	logger      *xlogger.Logger
	svc         SignalService
	latest      domrepo.SignalStore
	history     domrepo.HistorySink
	instruments []models.Instrument
}

func NewSignalsHandler(logger *xlogger.Logger, svc SignalService, latest domrepo.SignalStore, history domrepo.HistorySink, instruments []models.Instrument) *SignalsHandler {
	metrics.Register()
	return &SignalsHandler{logger: logger, svc: svc, latest: latest, history: history, instruments: instruments}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/signals/evaluate", h.Evaluate)
	g.GET("/signals/latest", h.LatestAll)
	g.GET("/signals/:symbol", h.Latest)
	g.POST("/signals/:symbol/analyze", h.Analyze)
	g.GET("/history", h.History)
	g.GET("/profiles", h.Profiles)
}

// Evaluate scores a snapshot without storing or alerting anything.
func (h *SignalsHandler) Evaluate(c echo.Context) error {
	const endpoint = "evaluate"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Fail(endpoint)
		return xhttp.BadRequestResponse(c, verr)
	}

	market, err := models.ParseMarketClass(req.Market)
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	snap, err := req.Snapshot.Decode()
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("snapshot: %v", err))
	}
	snap.Instrument = req.Instrument
	snap.Market = market

	var profile *models.ThresholdProfile
	if req.Profile != nil {
		p, err := req.Profile.Decode()
		if err != nil {
			metrics.Fail(endpoint)
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("profile: %v", err))
		}
		profile = &p
	}

	res, err := h.svc.Stateless(snap, profile, models.EMAState(req.PriorEMA))
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, h.mapError(endpoint, err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsHandler) LatestAll(c echo.Context) error {
	const endpoint = "latest_all"
	defer metrics.Observe(endpoint, time.Now())

	symbols := make([]string, len(h.instruments))
	for i, in := range h.instruments {
		symbols[i] = in.Symbol
	}
	evs, err := h.latest.LatestAll(c.Request().Context(), symbols)
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, h.mapError(endpoint, err))
	}
	return xhttp.ListResponse(c, evs, int64(len(evs)))
}

func (h *SignalsHandler) Latest(c echo.Context) error {
	const endpoint = "latest"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Fail(endpoint)
		return xhttp.BadRequestResponse(c, verr)
	}

	ev, err := h.latest.Latest(c.Request().Context(), req.Symbol)
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, h.mapError(endpoint, err))
	}
	return xhttp.SuccessResponse(c, ev)
}

// Analyze runs a full evaluation of a configured instrument now, with
// every side effect of a monitor tick.
func (h *SignalsHandler) Analyze(c echo.Context) error {
	const endpoint = "analyze"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Fail(endpoint)
		return xhttp.BadRequestResponse(c, verr)
	}
	in, ok := h.instrument(req.Symbol)
	if !ok {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("instrument is not configured").WithParam("symbol", req.Symbol))
	}

	ev, err := h.svc.AnalyzeInstrument(c.Request().Context(), in)
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, h.mapError(endpoint, err))
	}
	return xhttp.SuccessResponse(c, ev)
}

func (h *SignalsHandler) History(c echo.Context) error {
	const endpoint = "history"
	defer metrics.Observe(endpoint, time.Now())

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Fail(endpoint)
		return xhttp.BadRequestResponse(c, verr)
	}
	f := models.HistoryFilter{Symbol: req.Symbol, Limit: req.Limit}
	if req.Since != "" {
		t, ok := util.ParseTime(req.Since)
		if !ok {
			metrics.Fail(endpoint)
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("since must be RFC3339 or a unix timestamp"))
		}
		f.Since = t
	}

	evs, err := h.history.Recent(c.Request().Context(), f)
	if err != nil {
		metrics.Fail(endpoint)
		return xhttp.AppErrorResponse(c, h.mapError(endpoint, err))
	}
	return xhttp.ListResponse(c, evs, int64(len(evs)))
}

func (h *SignalsHandler) Profiles(c echo.Context) error {
	defer metrics.Observe("profiles", time.Now())
	return xhttp.SuccessResponse(c, h.svc.Profiles())
}

func (h *SignalsHandler) instrument(symbol string) (models.Instrument, bool) {
	for _, in := range h.instruments {
		if in.Symbol == symbol {
			return in, true
		}
	}
	return models.Instrument{}, false
}

func (h *SignalsHandler) mapError(endpoint string, err error) *xhttp.AppError {
	var snapErr *signal.InvalidSnapshotError
	switch {
	case errors.As(err, &snapErr):
		return xhttp.NewAppError("ERR_INVALID_SNAPSHOT", snapErr.Field, snapErr.Error(), 400).WithError(err)
	case errors.Is(err, signal.ErrInvalidProfile), errors.Is(err, signal.ErrUnknownMarket):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError("no signal recorded yet").WithError(err)
	case errors.Is(err, marketdata.ErrSymbolNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, features.ErrInsufficientHistory):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	}
	h.logger.Error("request failed", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	return xhttp.InternalError("Something went wrong").WithError(err)
}
