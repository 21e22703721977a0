package utils

import (
	"errors"
	"net/http"
	"time"

	"gopool/internal/models"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
	Total      int64           `json:"total,omitempty"`
	Count      int             `json:"count,omitempty"`
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now(),
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now(),
	})
}

func ValidationErrorResponse(c *gin.Context, details map[string]string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    string(models.CodeValidationFailed),
			Message: ErrValidationFailed,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, string(models.CodeValidationFailed), message)
}

func UnauthorizedResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized)
}

func InternalServerErrorResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", ErrInternalServer)
}

// DomainErrorResponse maps an engine-level error to the HTTP surface.
// The code travels as-is; only the status code is decided here.
func DomainErrorResponse(c *gin.Context, err error) {
	var de *models.DomainError
	if !errors.As(err, &de) {
		InternalServerErrorResponse(c)
		return
	}

	status := http.StatusInternalServerError
	switch de.Code {
	case models.CodeInvalidMessageTarget, models.CodeSelfReferential, models.CodeValidationFailed:
		status = http.StatusBadRequest
	case models.CodeDuplicatePending, models.CodeAlreadyResolved, models.CodeAlreadyExists,
		models.CodeTripFull, models.CodeAlreadyPassenger, models.CodeScheduleConflict,
		models.CodeVersionConflict, models.CodeChatClosed, models.CodeInvalidTransition,
		models.CodeTripNotJoinable, models.CodeRequiresConfirmedPassenger,
		models.CodePendingRequestsExist:
		status = http.StatusConflict
	case models.CodeNotFound:
		status = http.StatusNotFound
	case models.CodeNotAuthorized, models.CodeCannotRemoveDriver:
		status = http.StatusForbidden
	case models.CodePaymentFailed, models.CodeInsufficientFunds:
		status = http.StatusPaymentRequired
	}

	ErrorResponse(c, status, string(de.Code), de.Message)
}
