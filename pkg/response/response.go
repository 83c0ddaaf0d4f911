package response

import (
	"errors"
	"net/http"

	"rifas/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeNotFound    = 404
	CodeServerError = 500
)

// 业务错误码
const (
	CodeTicketNotAvailable = 1001
	CodeReservationInvalid = 1002
	CodeStateConflict      = 1003
	CodeInvalidAmount      = 1004
	CodeAlreadySettled     = 1005
	CodeNoTickets          = 1006
	CodeBusy               = 1007
	CodeRaffleNotActive    = 1008
)

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// FromError 把领域错误映射为 HTTP 状态码与业务码，消息保留具体失败原因
func FromError(c *gin.Context, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		ServerError(c, "internal server error")
		return
	}
	c.JSON(status, Response{
		Code:      code,
		Message:   err.Error(),
		Retryable: model.IsRetryable(err),
	})
}

// Classify 返回错误对应的 HTTP 状态码与业务码
func Classify(err error) (int, int) {
	switch {
	case errors.Is(err, model.ErrBusy):
		return http.StatusServiceUnavailable, CodeBusy
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, CodeParamError
	case errors.Is(err, model.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, CodeInvalidAmount
	case errors.Is(err, model.ErrNotAvailable):
		return http.StatusConflict, CodeTicketNotAvailable
	case errors.Is(err, model.ErrReservationInvalid):
		return http.StatusConflict, CodeReservationInvalid
	case errors.Is(err, model.ErrAlreadySettled):
		return http.StatusConflict, CodeAlreadySettled
	case errors.Is(err, model.ErrNoTickets):
		return http.StatusConflict, CodeNoTickets
	case errors.Is(err, model.ErrRaffleNotActive):
		return http.StatusConflict, CodeRaffleNotActive
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, CodeStateConflict
	default:
		return http.StatusInternalServerError, CodeServerError
	}
}
