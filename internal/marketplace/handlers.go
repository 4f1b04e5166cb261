package marketplace

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/logger"
	"github.com/sudo-init-do/agrihub/internal/store"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

type Handler struct {
	svc *Service
	log *logrus.Entry
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, log: logger.NewSublogger("http")}
}

// Register mounts participant routes on api and dispute resolution on admin.
func (h *Handler) Register(api, admin *echo.Group) {
	api.GET("/negotiations/:category/:id", h.GetNegotiation)
	api.POST("/negotiations/:category/:id/counter", h.CounterOffer)
	api.POST("/negotiations/:category/:id/accept", h.Accept)
	api.POST("/negotiations/:category/:id/reject", h.Reject)

	api.POST("/payments/:category/:id", h.EnsurePayment)
	api.GET("/payments/:category/:id", h.GetPayment)
	api.POST("/payments/:category/:id/advance-paid", h.withMethod(h.svc.MarkAdvancePaid))
	api.POST("/payments/:category/:id/work-started", h.plain(h.svc.MarkWorkStarted))
	api.POST("/payments/:category/:id/machine-paid", h.withMethod(h.svc.MarkMachinePaid))
	api.POST("/payments/:category/:id/work-completed", h.plain(h.svc.MarkWorkCompleted))
	api.POST("/payments/:category/:id/release", h.withMethod(h.svc.MarkReleased))
	api.POST("/payments/:category/:id/refund", h.plain(h.svc.MarkRefunded))

	api.POST("/payments/:category/:id/settlement/completed", h.plain(h.svc.MarkCompletedByLabour))
	api.POST("/payments/:category/:id/settlement/satisfied", h.plain(h.svc.ConfirmSatisfied))
	api.POST("/payments/:category/:id/settlement/revise", h.ReviseAmount)
	api.POST("/payments/:category/:id/settlement/accept-revision", h.plain(h.svc.AcceptRevision))
	api.POST("/payments/:category/:id/settlement/dispute", h.RaiseDispute)
	api.POST("/payments/:category/:id/settlement/paid", h.withMethod(h.svc.MarkPaid))
	api.GET("/payments/:category/:id/dispute", h.GetDispute)

	api.POST("/ratings/:category/:id", h.SubmitRating)
	api.GET("/ratings/:category/:id", h.GetRating)

	admin.GET("/disputes", h.ListDisputes)
	admin.POST("/disputes/:category/:id/resolve", h.ResolveDispute)
	admin.GET("/stats", h.Stats)
}

type target struct {
	userID   string
	category workitem.Category
	id       string
}

// requestError is a problem with the request itself, answered before the service runs.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// bindTarget reads the caller and the work item from the route.
func bindTarget(c echo.Context) (target, error) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return target{}, &requestError{http.StatusUnauthorized, "unauthorized"}
	}
	category, err := workitem.ParseCategory(c.Param("category"))
	if err != nil {
		return target{}, &requestError{http.StatusBadRequest, err.Error()}
	}
	id := c.Param("id")
	if id == "" {
		return target{}, &requestError{http.StatusBadRequest, "missing work item id"}
	}
	return target{userID: userID, category: category, id: id}, nil
}

// respondError maps service errors to responses. current is echoed back on
// conflicts so the client can refresh.
func (h *Handler) respondError(c echo.Context, err error, current interface{}) error {
	var (
		bad     *requestError
		blocked *escrow.BlockedError
	)
	switch {
	case errors.As(err, &bad):
		return c.JSON(bad.status, echo.Map{"error": bad.msg})
	case errors.As(err, &blocked):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":      blocked.Error(),
			"blocked":    true,
			"waiting_on": blocked.WaitingOn,
			"reason":     blocked.Reason,
			"payment":    current,
		})
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrNotFound), errors.Is(err, workitem.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, escrow.ErrInvalidAmount), errors.Is(err, ErrInvalidRating):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, escrow.ErrInvalidTransition),
		errors.Is(err, escrow.ErrWrongFlow),
		errors.Is(err, escrow.ErrNegotiationOpen),
		errors.Is(err, escrow.ErrNegotiationRejected),
		errors.Is(err, ErrAlreadyRated):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "payment": current})
	case errors.Is(err, store.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "record changed concurrently, retry"})
	case errors.Is(err, context.Canceled):
		return c.NoContent(499)
	}
	h.log.WithError(err).WithField("path", c.Path()).Error("Request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// GET /api/negotiations/:category/:id
func (h *Handler) GetNegotiation(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	view, err := h.svc.GetNegotiation(c.Request().Context(), t.userID, t.category, t.id)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, view)
}

// POST /api/negotiations/:category/:id/counter
func (h *Handler) CounterOffer(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Amount == nil || *req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: positive amount required"})
	}
	result, err := h.svc.CounterOffer(c.Request().Context(), t.userID, t.category, t.id, *req.Amount, req.Reason)
	return h.negotiationResponse(c, result, err)
}

// POST /api/negotiations/:category/:id/accept
func (h *Handler) Accept(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	result, err := h.svc.Accept(c.Request().Context(), t.userID, t.category, t.id)
	return h.negotiationResponse(c, result, err)
}

// POST /api/negotiations/:category/:id/reject
func (h *Handler) Reject(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	result, err := h.svc.Reject(c.Request().Context(), t.userID, t.category, t.id)
	return h.negotiationResponse(c, result, err)
}

func (h *Handler) negotiationResponse(c echo.Context, result NegotiationResult, err error) error {
	if err != nil {
		return h.respondError(c, err, nil)
	}
	if !result.Applied {
		return c.JSON(http.StatusConflict, echo.Map{"error": "negotiation is not open for this action", "negotiation": result})
	}
	return c.JSON(http.StatusOK, result)
}

// POST /api/payments/:category/:id
func (h *Handler) EnsurePayment(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	p, err := h.svc.EnsurePayment(c.Request().Context(), t.userID, t.category, t.id)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, p)
}

// GET /api/payments/:category/:id
func (h *Handler) GetPayment(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	p, err := h.svc.GetPayment(c.Request().Context(), t.userID, t.category, t.id)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, p)
}

type plainAction func(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error)

type methodAction func(ctx context.Context, userID string, category workitem.Category, id, method string) (escrow.Payment, error)

func (h *Handler) plain(action plainAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := bindTarget(c)
		if err != nil {
			return h.respondError(c, err, nil)
		}
		p, err := action(c.Request().Context(), t.userID, t.category, t.id)
		return h.paymentResponse(c, p, err)
	}
}

// withMethod binds the optional payment channel tag, e.g. {"method": "upi"}.
func (h *Handler) withMethod(action methodAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := bindTarget(c)
		if err != nil {
			return h.respondError(c, err, nil)
		}
		var req struct {
			Method string `json:"method"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
		}
		p, err := action(c.Request().Context(), t.userID, t.category, t.id, req.Method)
		return h.paymentResponse(c, p, err)
	}
}

func (h *Handler) paymentResponse(c echo.Context, p escrow.Payment, err error) error {
	if err != nil {
		var current interface{}
		if p.Key != "" {
			current = p
		}
		return h.respondError(c, err, current)
	}
	return c.JSON(http.StatusOK, p)
}

// POST /api/payments/:category/:id/settlement/revise
func (h *Handler) ReviseAmount(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Amount == nil || *req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: positive amount required"})
	}
	p, err := h.svc.ReviseAmount(c.Request().Context(), t.userID, t.category, t.id, *req.Amount, req.Reason)
	return h.paymentResponse(c, p, err)
}

// POST /api/payments/:category/:id/settlement/dispute
func (h *Handler) RaiseDispute(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil || req.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload: reason required"})
	}
	p, d, err := h.svc.RaiseDispute(c.Request().Context(), t.userID, t.category, t.id, req.Reason)
	if err != nil {
		return h.paymentResponse(c, p, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"payment": p, "dispute": d})
}

// GET /api/payments/:category/:id/dispute
func (h *Handler) GetDispute(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	d, err := h.svc.GetDispute(c.Request().Context(), t.userID, t.category, t.id)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, d)
}

// POST /api/admin/disputes/:category/:id/resolve
func (h *Handler) ResolveDispute(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	var req struct {
		Outcome escrow.DisputeOutcome `json:"outcome"`
		Amount  float64               `json:"amount"`
		Note    string                `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	switch req.Outcome {
	case escrow.ResolveRelease, escrow.ResolveRefund, escrow.ResolveNone:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "outcome must be release, refund or none"})
	}
	p, d, err := h.svc.ResolveDispute(c.Request().Context(), t.userID, t.category, t.id, req.Outcome, req.Amount, req.Note)
	if err != nil {
		return h.paymentResponse(c, p, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"payment": p, "dispute": d})
}

// GET /api/admin/disputes?status=open
func (h *Handler) ListDisputes(c echo.Context) error {
	status := DisputeStatus(c.QueryParam("status"))
	switch status {
	case "", DisputeOpen, DisputeResolved:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be open or resolved"})
	}
	disputes, err := h.svc.ListDisputes(c.Request().Context(), status)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"disputes": disputes})
}

// GET /api/admin/stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, st)
}

// POST /api/ratings/:category/:id
func (h *Handler) SubmitRating(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	var req struct {
		Stars   int    `json:"stars"`
		Comment string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	r, err := h.svc.SubmitRating(c.Request().Context(), t.userID, t.category, t.id, req.Stars, req.Comment)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, r)
}

// GET /api/ratings/:category/:id
func (h *Handler) GetRating(c echo.Context) error {
	t, err := bindTarget(c)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	r, err := h.svc.GetRating(c.Request().Context(), t.userID, t.category, t.id)
	if err != nil {
		return h.respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, r)
}
