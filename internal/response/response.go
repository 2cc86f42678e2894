package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/service"
)

const validationMessage = "validation failed, check your input"

type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Envelope is the body of every API response. Code mirrors the HTTP status.
type Envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

func OK(c *gin.Context, message string, data any) {
	Success(c, http.StatusOK, message, data)
}

func Created(c *gin.Context, message string, data any) {
	Success(c, http.StatusCreated, message, data)
}

func Success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{
		Success: true,
		Code:    status,
		Message: message,
		Data:    data,
	})
}

func Paginated(c *gin.Context, message string, data any, meta Meta) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
		Meta:    &meta,
	})
}

// Abort writes a failure envelope and stops the handler chain.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Code:    status,
		Message: message,
	})
}

// Error renders err as a failure envelope. Binding failures become 400 with
// per-field messages; service errors use their kind; anything else is a 500
// whose cause is only logged.
func Error(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fail(c, http.StatusBadRequest, validationMessage, fieldErrors(verrs))
		return
	}

	se := service.AsError(err)
	status := se.Kind.Status()
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	}

	var detail any
	if len(se.Fields) > 0 {
		detail = se.Fields
	}
	fail(c, status, se.Message, detail)
}

// BindError renders a gin binding failure. Input that never reached the
// validator, such as malformed JSON or a non-numeric query value, is reported
// under "request".
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	var se *service.Error
	if errors.As(err, &verrs) || errors.As(err, &se) {
		Error(c, err)
		return
	}
	fail(c, http.StatusBadRequest, validationMessage, map[string]string{"request": err.Error()})
}

func fail(c *gin.Context, status int, message string, detail any) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Code:    status,
		Message: message,
		Error:   detail,
	})
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if name == "" {
			name = fe.StructField()
		}
		fields[lowerFirst(name)] = describe(fe)
	}
	return fields
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		if fe.Kind().String() == "string" {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind().String() == "string" {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
