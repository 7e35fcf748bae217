package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"roomres/internal/bookings/service"
	"roomres/internal/bookings/validator"
	"roomres/pkg/auth"
	apperrors "roomres/pkg/errors"
	httputil "roomres/pkg/http"
	"roomres/pkg/logger"
	"roomres/pkg/sanitizer"

	"github.com/julienschmidt/httprouter"
)

type AvailabilityResponse struct {
	Available bool `json:"available"`
}

type BookingHandler struct {
	service   service.BookingService
	validator *validator.BookingValidator
	log       *logger.Logger
}

func NewBookingHandler(service service.BookingService, validator *validator.BookingValidator, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req validator.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.validator.ValidateCreate(&req)
	if err != nil {
		h.writeError(w, "Create", validationError(err))
		return
	}

	created, err := h.service.Create(r.Context(), auth.CallerFromContext(r.Context()), booking)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, created); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), auth.CallerFromContext(r.Context()), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	bookings, total, err := h.service.GetAll(r.Context(), auth.CallerFromContext(r.Context()), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) ListForUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookings, err := h.service.ListForUser(r.Context(), auth.CallerFromContext(r.Context()), sanitizer.NormalizeUsername(ps.ByName("username")))
	if err != nil {
		h.writeError(w, "ListForUser", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "ListForUser", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req validator.UpdateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Update", apperrors.InvalidInput("Invalid request body"))
		return
	}

	update, err := h.validator.ValidateUpdate(&req)
	if err != nil {
		h.writeError(w, "Update", validationError(err))
		return
	}

	updated, err := h.service.Update(r.Context(), auth.CallerFromContext(r.Context()), ps.ByName("id"), update)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, updated); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Delete(r.Context(), auth.CallerFromContext(r.Context()), ps.ByName("id")); err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	var req validator.AvailabilityRequest
	if s := query.Get("room_id"); s != "" {
		roomID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, "CheckAvailability", apperrors.InvalidInput("invalid room_id parameter: "+s))
			return
		}
		req.RoomID = roomID
	}
	req.Date = query.Get("date")
	req.StartTime = query.Get("start_time")
	req.EndTime = query.Get("end_time")

	availabilityQuery, err := h.validator.ValidateAvailability(&req)
	if err != nil {
		h.writeError(w, "CheckAvailability", validationError(err))
		return
	}

	available, err := h.service.CheckAvailability(r.Context(), availabilityQuery)
	if err != nil {
		h.writeError(w, "CheckAvailability", err)
		return
	}

	if err := httputil.WriteSuccess(w, AvailabilityResponse{Available: available}); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckAvailability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.PATCH("/api/v1/bookings/id/:id", h.Update)
	router.DELETE("/api/v1/bookings/id/:id", h.Delete)
	router.GET("/api/v1/bookings/user/:username", h.ListForUser)
	router.GET("/api/v1/bookings/availability", h.CheckAvailability)
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("Invalid booking input", verrs.Details())
	}
	return apperrors.InvalidInput(err.Error())
}
