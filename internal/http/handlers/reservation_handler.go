package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	mw "github.com/diagnosis/parcel-bookings/internal/http/middleware"
	"github.com/diagnosis/parcel-bookings/internal/http/response"
	"github.com/diagnosis/parcel-bookings/internal/service"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
)

type ReservationHandler struct {
	Reservations service.ReservationService
	Tokens       *auth.TokenManager
	Idempotency  Middleware
}

func NewReservationHandler(reservations service.ReservationService, tokens *auth.TokenManager) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations, Tokens: tokens, Idempotency: passthrough}
}

func (h *ReservationHandler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireJWT(h.Tokens))
		r.With(mw.ValidateBody[domain.DateRangeRequest]).Post("/checkDates", h.checkDates)
		r.Get("/getService", h.listServices)
		r.With(h.Idempotency, mw.ValidateBody[domain.ReserveRequest]).Post("/reserveDone", h.create)
		r.Get("/getReserveUser", h.list)
		r.With(mw.ValidateBody[domain.BookingIDRequest]).Post("/getReserveService", h.bookingServices)
		r.With(mw.ValidateBody[domain.BookingIDRequest]).Put("/reserveDelete", h.cancel)
		r.Get("/getReserveById/{id}", h.getByID)
		r.Get("/getServiceByReserve/{id}", h.serviceSummary)
		r.With(mw.ValidateBody[domain.ReserveUpdateRequest]).Put("/reserveUpdate", h.update)
	})
}

func (h *ReservationHandler) checkDates(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reservations.CheckAvailability(r.Context(), mw.Body[domain.DateRangeRequest](r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *ReservationHandler) listServices(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reservations.ListServices(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Service{}
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *ReservationHandler) create(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reservations.CreateBooking(r.Context(), mw.UserID(r), mw.Body[domain.ReserveRequest](r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, out)
}

func (h *ReservationHandler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.Reservations.ListUserBookings(r.Context(), mw.UserID(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Booking{}
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *ReservationHandler) bookingServices(w http.ResponseWriter, r *http.Request) {
	in := mw.Body[domain.BookingIDRequest](r)
	out, err := h.Reservations.ListBookingServices(r.Context(), mw.UserID(r), in.BookingID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Service{}
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *ReservationHandler) cancel(w http.ResponseWriter, r *http.Request) {
	in := mw.Body[domain.BookingIDRequest](r)
	if err := h.Reservations.DeleteBooking(r.Context(), mw.UserID(r), in.BookingID); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"message": "booking canceled", "booking_id": in.BookingID})
}

func (h *ReservationHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}
	b, err := h.Reservations.GetBooking(r.Context(), mw.UserID(r), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, b)
}

func (h *ReservationHandler) serviceSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}
	out, err := h.Reservations.ServiceSummary(r.Context(), mw.UserID(r), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *ReservationHandler) update(w http.ResponseWriter, r *http.Request) {
	b, err := h.Reservations.UpdateBooking(r.Context(), mw.UserID(r), mw.Body[domain.ReserveUpdateRequest](r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, b)
}

func bookingIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid booking id")
		return 0, false
	}
	return id, true
}
