package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	codeSuccess    = 0
	codeBadRequest = 1
	codeNotFound   = 2
	codeInternal   = 3
)

type response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func makeSuccessResp(data any) response {
	return response{Code: codeSuccess, Msg: "success", Data: data}
}

func makeErrorResp(code int, msg string) response {
	return response{Code: code, Msg: msg}
}

// logRequest logs one line per request after it has been served.
func logRequest(log *logrus.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		entry := log.WithFields(logrus.Fields{
			"method":  ctx.Request.Method,
			"path":    ctx.Request.URL.Path,
			"status":  ctx.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
			"client":  ctx.ClientIP(),
		})
		if len(ctx.Errors) > 0 {
			entry.Warn(ctx.Errors.String())
			return
		}
		entry.Debug("request served")
	}
}
