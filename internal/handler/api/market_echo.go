package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinFeed/internal/domain/models"
	domrepo "FinFeed/internal/domain/repository"
	xhttp "FinFeed/pkg/http"
	xlogger "FinFeed/pkg/logger"
	"FinFeed/pkg/util"

	"github.com/labstack/echo/v4"
)

// MarketService is the read side served over HTTP. usecase.MarketData implements it.
type MarketService interface {
	Quote(ctx context.Context, symbol string) (models.Result[models.Quote], error)
	RefreshQuote(ctx context.Context, symbol string) (models.Result[models.Quote], error)
	Historical(ctx context.Context, symbol string, days int) (models.Result[[]models.HistoricalPoint], error)
	CompanyInfo(ctx context.Context, symbol string) (models.Result[models.CompanyInfo], error)
	News(ctx context.Context, symbol string, days int) (models.Result[[]models.NewsItem], error)
	Indicators(ctx context.Context, symbol string) (models.Result[models.TechnicalIndicators], error)
}

// StatusSource reports the heartbeat state.
type StatusSource interface {
	Status() models.ConnectionStatus
}

// LoopStats reports the running poll loops.
type LoopStats interface {
	ActiveLoops() int
	Symbols() map[string]int
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Connection  models.ConnectionStatus `json:"connection"`
	Sources     []string                `json:"sources"`
	ActiveLoops int                     `json:"activeLoops"`
	Subscribers map[string]int          `json:"subscribers"`
}

// MarketEchoHandler serves market data over Echo.
type MarketEchoHandler struct {
	logger  *xlogger.Logger
	svc     MarketService
	status  StatusSource
	loops   LoopStats
	sources []string
	archive domrepo.QuoteArchive
	now     func() time.Time
}

// NewMarketEchoHandler creates a new MarketEchoHandler instance. archive may be nil.
func NewMarketEchoHandler(
	logger *xlogger.Logger,
	svc MarketService,
	status StatusSource,
	loops LoopStats,
	sources []string,
	archive domrepo.QuoteArchive,
) *MarketEchoHandler {
	return &MarketEchoHandler{
		logger:  logger,
		svc:     svc,
		status:  status,
		loops:   loops,
		sources: sources,
		archive: archive,
		now:     time.Now,
	}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/quote", h.Quote)
	g.GET("/history", h.History)
	g.GET("/company", h.Company)
	g.GET("/news", h.News)
	g.GET("/indicators", h.Indicators)
	g.GET("/status", h.Status)
	g.GET("/archive/quotes", h.Archive)
}

// errorResponse maps usecase errors onto AppErrors.
func (h *MarketEchoHandler) errorResponse(c echo.Context, op string, err error) error {
	var asf *models.AllSourcesFailedError
	switch {
	case errors.Is(err, models.ErrInvalidSymbol):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.As(err, &asf):
		h.logger.Warn("market data unavailable",
			xlogger.String("op", op),
			xlogger.String("symbol", asf.Symbol),
			xlogger.Int("sources", len(asf.Errors)),
		)
		return xhttp.AppErrorResponse(c, xhttp.DataUnavailableErrorf("no source could serve %s for %s", op, asf.Symbol).
			WithParam("failures", asf.Errors).
			WithError(err))
	}
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("failed to load "+op).WithError(err))
}

// cacheHeaders lets clients reuse fresh results for the remaining TTL.
func cacheHeaders(c echo.Context, meta models.Meta) {
	if meta.Stale || meta.Partial {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
}

func (h *MarketEchoHandler) Quote(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	load := h.svc.Quote
	if req.Refresh {
		load = h.svc.RefreshQuote
	}
	res, err := load(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.errorResponse(c, "quote", err)
	}
	cacheHeaders(c, res.Meta)
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.Historical(c.Request().Context(), req.Symbol, req.Days)
	if err != nil {
		return h.errorResponse(c, "history", err)
	}
	cacheHeaders(c, res.Meta)
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Company(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.CompanyInfo(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.errorResponse(c, "company info", err)
	}
	cacheHeaders(c, res.Meta)
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) News(c echo.Context) error {
	req := &models.NewsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.News(c.Request().Context(), req.Symbol, req.Days)
	if err != nil {
		return h.errorResponse(c, "news", err)
	}
	cacheHeaders(c, res.Meta)
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Indicators(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.Indicators(c.Request().Context(), req.Symbol)
	if err != nil {
		return h.errorResponse(c, "indicators", err)
	}
	cacheHeaders(c, res.Meta)
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Status(c echo.Context) error {
	out := StatusResponse{
		Connection:  models.ConnectionStatus{State: models.StateUnknown},
		Sources:     h.sources,
		Subscribers: map[string]int{},
	}
	if h.status != nil {
		out.Connection = h.status.Status()
	}
	if h.loops != nil {
		out.ActiveLoops = h.loops.ActiveLoops()
		out.Subscribers = h.loops.Symbols()
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *MarketEchoHandler) Archive(c echo.Context) error {
	if h.archive == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("quote archive is not enabled"))
	}
	req := &models.ArchiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	window, err := xhttp.ResolveTimeRange(req.From, req.To, h.now().UTC(), 24*time.Hour)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	rows, err := h.archive.Query(c.Request().Context(), util.NormalizeSymbol(req.Symbol), window.From, window.To, req.Limit)
	if err != nil {
		return h.errorResponse(c, "archive", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	body := map[string]string{"status": "ok"}
	if h.status != nil {
		body["connection"] = string(h.status.Status().State)
	}
	if h.archive != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.archive.Health(ctx); err != nil {
			body["status"] = "degraded"
			body["archive"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["archive"] = "ok"
	}
	return c.JSON(http.StatusOK, body)
}
