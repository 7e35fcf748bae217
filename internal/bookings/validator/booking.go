package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"roomres/pkg/logger"
	"roomres/pkg/model"
	"roomres/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details renders the errors as a field to message map for error envelopes.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

// CreateBookingRequest is the wire form of a new booking. Username is the
// booking owner and defaults to the caller when empty.
type CreateBookingRequest struct {
	Username  string `json:"username" validate:"omitempty,max=100"`
	RoomID    int64  `json:"room_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,timeofday"`
	EndTime   string `json:"end_time" validate:"required,timeofday"`
}

type UpdateBookingRequest struct {
	Date      *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime *string `json:"start_time" validate:"omitempty,timeofday"`
	EndTime   *string `json:"end_time" validate:"omitempty,timeofday"`
}

type AvailabilityRequest struct {
	RoomID    int64  `json:"room_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,timeofday"`
	EndTime   string `json:"end_time" validate:"required,timeofday"`
}

// BookingValidator checks request shapes only. Whether end follows start is
// a domain rule enforced by the service.
type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("timeofday", validateTimeOfDay); err != nil {
		log.Fatal("Failed to register 'timeofday' validator",
			"error", err,
		)
	}

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateTimeOfDay(fl validator.FieldLevel) bool {
	_, err := model.ParseTimeOfDay(fl.Field().String())
	return err == nil
}

func (v *BookingValidator) ValidateCreate(req *CreateBookingRequest) (*model.Booking, error) {
	req.Username = sanitizer.NormalizeUsername(req.Username)
	if err := v.check(req); err != nil {
		return nil, err
	}

	date, _ := model.ParseDate(req.Date)
	return &model.Booking{
		Username:  req.Username,
		RoomID:    req.RoomID,
		Date:      date,
		StartTime: model.MustTime(req.StartTime),
		EndTime:   model.MustTime(req.EndTime),
	}, nil
}

func (v *BookingValidator) ValidateUpdate(req *UpdateBookingRequest) (*model.BookingUpdate, error) {
	if err := v.check(req); err != nil {
		return nil, err
	}

	update := &model.BookingUpdate{}
	if req.Date != nil {
		date, _ := model.ParseDate(*req.Date)
		update.Date = &date
	}
	if req.StartTime != nil {
		start := model.MustTime(*req.StartTime)
		update.StartTime = &start
	}
	if req.EndTime != nil {
		end := model.MustTime(*req.EndTime)
		update.EndTime = &end
	}
	return update, nil
}

func (v *BookingValidator) ValidateAvailability(req *AvailabilityRequest) (*model.AvailabilityQuery, error) {
	if err := v.check(req); err != nil {
		return nil, err
	}

	date, _ := model.ParseDate(req.Date)
	return &model.AvailabilityQuery{
		RoomID:    req.RoomID,
		Date:      date,
		StartTime: model.MustTime(req.StartTime),
		EndTime:   model.MustTime(req.EndTime),
	}, nil
}

func (v *BookingValidator) check(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "timeofday":
			message = fmt.Sprintf("%s must be a time in HH:MM or HH:MM:SS format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
