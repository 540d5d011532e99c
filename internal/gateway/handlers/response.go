package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
	"sales-crm/internal/services/cart"
	"sales-crm/internal/services/catalog"
	"sales-crm/internal/services/orders"
	"sales-crm/internal/services/user"
)

type APIResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{access.ErrUnauthenticated, http.StatusUnauthorized},
	{user.ErrInvalidCredentials, http.StatusUnauthorized},

	{access.ErrForbidden, http.StatusForbidden},
	{orders.ErrUnauthorized, http.StatusForbidden},

	{access.ErrNotVisible, http.StatusNotFound},
	{user.ErrNotFound, http.StatusNotFound},
	{catalog.ErrProductNotFound, http.StatusNotFound},
	{orders.ErrOrderNotFound, http.StatusNotFound},

	{user.ErrUsernameTaken, http.StatusConflict},
	{orders.ErrInsufficientInventory, http.StatusConflict},

	{user.ErrPasswordTooShort, http.StatusBadRequest},
	{user.ErrPasswordMismatch, http.StatusBadRequest},
	{user.ErrInvalidInput, http.StatusBadRequest},
	{catalog.ErrInvalidQuantity, http.StatusBadRequest},
	{cart.ErrInvalidCart, http.StatusBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{orders.ErrInvalidLine, http.StatusBadRequest},

	{access.ErrInvalidRole, http.StatusUnprocessableEntity},
	{user.ErrHasReports, http.StatusUnprocessableEntity},
	{user.ErrHasClients, http.StatusUnprocessableEntity},
	{user.ErrInvalidSalesperson, http.StatusUnprocessableEntity},
	{user.ErrInvalidFeedback, http.StatusUnprocessableEntity},
	{catalog.ErrInvalidProduct, http.StatusUnprocessableEntity},
	{catalog.ErrInvalidPromotion, http.StatusUnprocessableEntity},
	{cart.ErrEmptyCart, http.StatusUnprocessableEntity},
	{orders.ErrDiscountExceeded, http.StatusUnprocessableEntity},
	{orders.ErrInvalidProduct, http.StatusUnprocessableEntity},
	{orders.ErrEmptyOrder, http.StatusUnprocessableEntity},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope. Server errors are logged and never echoed.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, errorResponse("internal server error"))
		return
	}
	c.JSON(status, errorResponse(err.Error()))
}

// respondBindError reports malformed JSON as 400 and failed binding rules as 422 with one
// message per field.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request format"))
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// drop the request struct name: "lines[0].quantity", not "placeOrderBody.lines[0].quantity"
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		fields[name] = fieldMessage(fe)
	}
	resp := errorResponse("validation failed")
	resp.Errors = fields
	c.JSON(http.StatusUnprocessableEntity, resp)
}

var registerOnce sync.Once

// UseJSONFieldNames makes validation errors report fields by their JSON names.
func UseJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be %s or more", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "eqfield":
		return "does not match"
	case "dive":
		return "contains an invalid entry"
	}
	return fmt.Sprintf("failed the %q rule", fe.Tag())
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("invalid "+param))
		return 0, false
	}
	return id, true
}

// scope loads the actor's view of the hierarchy, writing the error response on failure.
func scope(c *gin.Context, db *gorm.DB, actor access.Actor) (access.Scope, bool) {
	s, err := access.LoadScope(c.Request.Context(), db, actor)
	if err != nil {
		respondError(c, err)
		return access.Scope{}, false
	}
	return s, true
}
