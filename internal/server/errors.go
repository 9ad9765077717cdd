package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/storefront"
	tierdomain "github.com/smallbiznis/promosync/internal/tier/domain"
	webhookdomain "github.com/smallbiznis/promosync/internal/webhook/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindError converts a gin binding failure into field level validation errors.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Code:    "invalid_" + strings.ToLower(fe.Field()),
			Message: "failed " + fe.Tag() + " validation",
		})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isConflictError(err) {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, webhookdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, webhookdomain.ErrMissingSecret):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case discountdomain.KindOf(err) == discountdomain.KindUpstream:
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream request failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on access logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		code = vErr.Errors[0].Code
	} else if payload.Type == "validation_error" {
		code = validationErrorCode(err)
	} else if kind := discountdomain.KindOf(err); kind != discountdomain.KindUnknown {
		code = kind.String()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, discountdomain.ErrInvalidShop),
		errors.Is(err, discountdomain.ErrInvalidID),
		errors.Is(err, discountdomain.ErrInvalidStatus),
		errors.Is(err, tierdomain.ErrInvalidTier),
		errors.Is(err, storefront.ErrInvalidProduct),
		errors.Is(err, storefront.ErrInvalidPrice),
		errors.Is(err, webhookdomain.ErrInvalidShop),
		errors.Is(err, webhookdomain.ErrInvalidEventID),
		errors.Is(err, webhookdomain.ErrInvalidPayload),
		errors.Is(err, webhookdomain.ErrUnsupportedTopic):
		return true
	}
	return discountdomain.KindOf(err) == discountdomain.KindInvalidInput
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, discountdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	}
	return discountdomain.KindOf(err) == discountdomain.KindNotFound
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, discountdomain.ErrQuotaExceeded),
		errors.Is(err, discountdomain.ErrNotToggleable),
		errors.Is(err, discountdomain.ErrReprocessRunning):
		return true
	}
	return discountdomain.KindOf(err) == discountdomain.KindConflict
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, discountdomain.ErrQuotaExceeded):
		return "live discount quota reached for the current plan"
	case errors.Is(err, discountdomain.ErrNotToggleable):
		return "discount is excluded and cannot be toggled"
	case errors.Is(err, discountdomain.ErrReprocessRunning):
		return "a reprocess is already running for this shop"
	}
	return "conflict"
}

func validationErrorCode(err error) string {
	codes := []error{
		discountdomain.ErrInvalidShop,
		discountdomain.ErrInvalidID,
		discountdomain.ErrInvalidStatus,
		tierdomain.ErrInvalidTier,
		storefront.ErrInvalidProduct,
		storefront.ErrInvalidPrice,
		webhookdomain.ErrInvalidShop,
		webhookdomain.ErrInvalidEventID,
		webhookdomain.ErrInvalidPayload,
		webhookdomain.ErrUnsupportedTopic,
	}
	for _, target := range codes {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if strings.HasPrefix(code, "unsupported_") {
		return strings.TrimPrefix(code, "unsupported_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
