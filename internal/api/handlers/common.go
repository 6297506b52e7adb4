package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoomemory/internal/api/middleware"
	"github.com/yoockh/yoomemory/internal/utils"
)

type APIError struct {
	Code      utils.Code `json:"code"`
	Message   string     `json:"message"`
	RequestID string     `json:"request_id,omitempty"`
}

// writeError renders err and records it on the context for the request
// logger. Non-AppErrors never leak their text to the client.
func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	body := APIError{
		Code:      utils.CodeOf(err),
		Message:   http.StatusText(status),
		RequestID: c.GetString(middleware.CtxRequestID),
	}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		body.Code, body.Message = ae.Code, ae.Message
	}
	c.AbortWithStatusJSON(status, body)
}

func requireUserID(c *gin.Context) (string, bool) {
	if uid := c.GetString(middleware.CtxUserID); uid != "" {
		return uid, true
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

func bindJSON(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err))
		return false
	}
	return true
}

// queryInt returns def unless the parameter is an integer in [1, max].
func queryInt(c *gin.Context, name string, def, max int) int {
	if s := c.Query(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}
