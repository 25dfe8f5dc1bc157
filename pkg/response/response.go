package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"echoclicker/internal/models"
)

type Response struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Kind    models.ErrorKind `json:"kind,omitempty"`
	Data    interface{}      `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData carries a payload alongside the error, such as parse
// diagnostics or a failed replay outcome.
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	Failure(c, models.KindOf(err), err.Error(), data)
}

// Failure writes an error of the given kind.
func Failure(c *gin.Context, kind models.ErrorKind, message string, data interface{}) {
	code := StatusOfKind(kind)
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Kind:    kind,
		Data:    data,
	})
}

// FromError writes err with the status matching its kind.
func FromError(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// StatusOf maps an error to the HTTP status of its kind.
func StatusOf(err error) int {
	return StatusOfKind(models.KindOf(err))
}

func StatusOfKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindAlreadyActive, models.KindNotActive:
		return http.StatusConflict
	case models.KindNotFound, models.KindElementNotFound:
		return http.StatusNotFound
	case models.KindAgentUnreachable:
		return http.StatusBadGateway
	case models.KindMalformedScript, models.KindInvalidRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func InternalServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
