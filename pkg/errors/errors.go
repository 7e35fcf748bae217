package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"

	// Booking domain kinds. Each one is a distinct outcome callers can act on.
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeBookingNotFound  = "BOOKING_NOT_FOUND"
	CodeRoomUnavailable  = "ROOM_UNAVAILABLE"
	CodeInvalidTimeRange = "INVALID_TIME_RANGE"
	CodeBookingConflict  = "BOOKING_CONFLICT"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// Unavailable reports an upstream service that could not answer. err is the
// cause and may be nil.
func Unavailable(service string, err error) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func UserNotFound(username string) *AppError {
	return &AppError{
		Code:       CodeUserNotFound,
		Message:    "User not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"username": username},
	}
}

func RoomNotFound(roomID int64) *AppError {
	return &AppError{
		Code:       CodeRoomNotFound,
		Message:    "Room not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"room_id": roomID},
	}
}

func BookingNotFound(id string) *AppError {
	return &AppError{
		Code:       CodeBookingNotFound,
		Message:    "Booking not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"id": id},
	}
}

func RoomUnavailable(roomID int64) *AppError {
	return &AppError{
		Code:       CodeRoomUnavailable,
		Message:    "Room is not available for booking",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"room_id": roomID},
	}
}

func InvalidTimeRange(start, end fmt.Stringer) *AppError {
	return &AppError{
		Code:       CodeInvalidTimeRange,
		Message:    "start_time must be before end_time",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"start_time": start.String(), "end_time": end.String()},
	}
}

func BookingConflict(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeBookingConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    details,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is, or wraps, an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}
