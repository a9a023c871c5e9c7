package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fete/internal/guest/fingerprint"
	guestsvc "fete/internal/guest/service"
	invsvc "fete/internal/invitation/service"
	"fete/internal/order/models"
	ordersvc "fete/internal/order/service"
	id "fete/pkg/domain"
	dErrors "fete/pkg/domain-errors"
	"fete/pkg/platform/httputil"
	"fete/pkg/requestcontext"
)

type handler struct {
	orders      *ordersvc.Service
	invitations *invsvc.Service
	guests      *guestsvc.Service
	logger      *slog.Logger
}

func (h *handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	httputil.WriteError(w, err)
}

func decode(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body must be valid json")
	}
	return nil
}

func orderIDParam(r *http.Request) (id.OrderID, error) {
	return id.ParseOrderID(chi.URLParam(r, "orderID"))
}

// --- public surface ---

func (h *handler) getInvitation(w http.ResponseWriter, r *http.Request) {
	view, err := h.invitations.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

type registerGuestRequest struct {
	DisplayName string `json:"display_name"`
	IsTestSlot  bool   `json:"is_test_slot"`
	Signals     struct {
		UserAgent             string   `json:"user_agent"`
		ScreenResolution      string   `json:"screen_resolution"`
		TimezoneOffsetMinutes int      `json:"timezone_offset_minutes"`
		Languages             []string `json:"languages"`
		CanvasHash            string   `json:"canvas_hash"`
	} `json:"signals"`
}

func (h *handler) registerGuest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerGuestRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}

	// The User-Agent header is authoritative; the payload copy exists only
	// for clients behind sanitizing proxies.
	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = req.Signals.UserAgent
	}

	result, err := h.guests.Register(ctx, chi.URLParam(r, "slug"), guestsvc.Registration{
		DisplayName: req.DisplayName,
		IPAddress:   requestcontext.ClientIP(ctx),
		IsTestSlot:  req.IsTestSlot,
		Signals: fingerprint.Signals{
			UserAgent:             userAgent,
			ScreenResolution:      req.Signals.ScreenResolution,
			TimezoneOffsetMinutes: req.Signals.TimezoneOffsetMinutes,
			Languages:             req.Signals.Languages,
			CanvasHash:            req.Signals.CanvasHash,
		},
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, result.Guest)
}

// --- admin surface ---

type createOrderRequest struct {
	UserID     string `json:"user_id"`
	PlanCode   string `json:"plan_code"`
	TemplateID string `json:"template_id"`
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}

	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	templateID, err := id.ParseTemplateID(req.TemplateID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	order, err := h.orders.Create(r.Context(), userID, models.PlanCode(req.PlanCode), templateID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	order, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	order, err := h.orders.SubmitForPayment(r.Context(), orderID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type confirmPaymentRequest struct {
	PaymentReference string `json:"payment_reference"`
}

func (h *handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req confirmPaymentRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	order, err := h.orders.ConfirmPayment(r.Context(), orderID, req.PaymentReference)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	invitation, err := h.orders.Approve(ctx, orderID, requestcontext.AdminID(ctx))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, invitation)
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req rejectOrderRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	order, err := h.orders.Reject(ctx, orderID, requestcontext.AdminID(ctx), req.Reason)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	order, err := h.orders.Cancel(r.Context(), orderID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type grantCapacityRequest struct {
	ExtraStandard int `json:"extra_standard"`
	ExtraTest     int `json:"extra_test"`
}

func (h *handler) grantCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := orderIDParam(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req grantCapacityRequest
	if err := decode(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	order, err := h.orders.GrantCapacity(ctx, orderID, requestcontext.AdminID(ctx), req.ExtraStandard, req.ExtraTest)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *handler) listGuests(w http.ResponseWriter, r *http.Request) {
	invitationID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	guests, err := h.guests.ListByInvitation(r.Context(), invitationID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"guests": guests, "count": len(guests)})
}
