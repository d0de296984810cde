package api

import (
	"errors"
	"net/http"
	"time"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/strategy"
	"StockVote/internal/usecase"
	xhttp "StockVote/pkg/http"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/util"

	"github.com/labstack/echo/v4"
)

// AnalysisEchoHandler serves batches, ad-hoc analysis and signal statistics.
type AnalysisEchoHandler struct {
	logger   *applogger.Logger
	analyzer *usecase.Analyzer
	batches  *usecase.BatchEngine
	reports  *usecase.ReportService
	interval time.Duration
	barStep  time.Duration
	now      func() time.Time
}

type HandlerOption func(*AnalysisEchoHandler)

// WithStreamInterval sets how often the stream endpoint pushes a snapshot.
func WithStreamInterval(d time.Duration) HandlerOption {
	return func(h *AnalysisEchoHandler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithBarStep aligns ad-hoc windows to the bar interval, so requests within
// one bar share a window and its cached series.
func WithBarStep(d time.Duration) HandlerOption {
	return func(h *AnalysisEchoHandler) {
		if d > 0 {
			h.barStep = d
		}
	}
}

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *AnalysisEchoHandler) { h.now = now }
}

func NewAnalysisEchoHandler(logger *applogger.Logger, analyzer *usecase.Analyzer, batches *usecase.BatchEngine, reports *usecase.ReportService, opts ...HandlerOption) *AnalysisEchoHandler {
	h := &AnalysisEchoHandler{
		logger:   logger,
		analyzer: analyzer,
		batches:  batches,
		reports:  reports,
		interval: time.Second,
		barStep:  15 * time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *AnalysisEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/strategies", h.Strategies)
	g.POST("/batches", h.StartBatch)
	g.GET("/batches/:id", h.GetBatch)
	g.POST("/batches/:id/cancel", h.CancelBatch)
	g.GET("/batches/:id/results", h.BatchResults)
	g.GET("/batches/:id/stream", h.StreamBatch)
	g.GET("/instruments/:code/analysis", h.AnalyzeInstrument)
	g.GET("/signals/stats", h.SignalStats)
}

func (h *AnalysisEchoHandler) Strategies(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.analyzer.Registry().Describe())
}

func (h *AnalysisEchoHandler) StartBatch(c echo.Context) error {
	req := &models.StartBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	handle, err := h.batches.Start(c.Request().Context(), usecase.BatchRequest{
		Name:        req.Name,
		Instruments: req.Instruments,
		Limit:       req.Limit,
		Strategies:  req.Strategies,
		Concurrency: req.Concurrency,
		Days:        req.Days,
	})
	if err != nil {
		return h.fail(c, "start batch", err)
	}
	return xhttp.AcceptedResponse(c, handle.Snapshot())
}

func (h *AnalysisEchoHandler) GetBatch(c echo.Context) error {
	run, err := h.batches.Lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get batch", err)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *AnalysisEchoHandler) CancelBatch(c echo.Context) error {
	id := c.Param("id")
	if err := h.batches.Cancel(c.Request().Context(), id); err != nil {
		return h.fail(c, "cancel batch", err)
	}
	h.logger.Info("batch cancel requested", applogger.String("batch_id", id))
	run, err := h.batches.Lookup(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "get batch", err)
	}
	return xhttp.AcceptedResponse(c, run)
}

func (h *AnalysisEchoHandler) BatchResults(c echo.Context) error {
	req := &models.BatchResultsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var signal models.Signal
	if req.Signal != "" {
		signal, _ = models.ParseSignal(req.Signal)
	}
	report, err := h.reports.BatchReport(c.Request().Context(), req.ID, signal, req.Limit)
	if err != nil {
		return h.fail(c, "batch results", err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *AnalysisEchoHandler) AnalyzeInstrument(c echo.Context) error {
	req := &models.InstrumentAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Refresh {
		if err := h.analyzer.Refresh(c.Request().Context(), req.Code); err != nil {
			h.logger.Warn("series refresh failed", applogger.String("code", req.Code), applogger.Error(err))
		}
	}
	from, to := util.Window(h.now(), req.Days, h.barStep)
	res, err := h.analyzer.AnalyzeInstrument(c.Request().Context(), req.Code, util.SplitList(req.Strategies), from, to)
	if err != nil {
		return h.fail(c, "analyze instrument", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisEchoHandler) SignalStats(c echo.Context) error {
	req := &models.SignalStatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats, err := h.reports.SignalStats(c.Request().Context(), req.Days, req.Strategy)
	if err != nil {
		return h.fail(c, "signal stats", err)
	}
	return xhttp.SuccessResponse(c, stats)
}

// fail maps usecase errors onto API errors. Unexpected ones are logged.
func (h *AnalysisEchoHandler) fail(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, domrepo.ErrBatchNotFound):
		appErr = xhttp.NotFoundErrorf("batch %s not found", c.Param("id"))
	case errors.Is(err, domrepo.ErrNotFound):
		appErr = xhttp.NotFoundError(err.Error())
	case errors.Is(err, usecase.ErrBatchNotRunning):
		appErr = xhttp.ConflictErrorf("batch %s is not running", c.Param("id"))
	case errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, usecase.ErrEmptyUniverse),
		errors.Is(err, usecase.ErrInvalidWindow),
		errors.Is(err, util.ErrInvalidInstrument):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, domrepo.ErrUnavailable):
		h.logger.Warn(op+" upstream unavailable", applogger.Error(err))
		appErr = xhttp.NewAppError("ERR_UNAVAILABLE", "", "market data unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error(op+" usecase error", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}
