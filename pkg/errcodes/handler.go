package errcodes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is an Echo error handler that maps the domain taxonomy onto
// {"error": "<message>"} payloads. Any error outside the taxonomy is treated
// as an internal server error and masked; the cause only reaches the logs.
func (h *Handler) Handle(err error, c echo.Context) {
	if errutils.IsIgnorableErr(err) {
		logger.FromEchoContext(c).Err(err).Warn("broken pipe")
		return
	}

	httpCode, msg := h.generatePayload(err)

	if httpCode == http.StatusInternalServerError {
		logger.FromEchoContext(c).Err(err).Error("server error")
	}

	if err := c.JSON(httpCode, map[string]string{"error": msg}); err != nil {
		logger.FromEchoContext(c).Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func (h *Handler) generatePayload(err error) (int, string) {
	msg := ""
	httpCode := http.StatusInternalServerError

	// Echo errors (route not found, method not allowed, body limit)
	var he *echo.HTTPError
	if ok := errors.As(err, &he); ok {
		httpCode = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}

	// Domain errors
	var e *Error
	if ok := errors.As(err, &e); ok {
		httpCode = e.HTTPCode
		msg = e.Message
	}

	// Anything else is masked.
	if httpCode == http.StatusInternalServerError &&
		(msg == "" || msg == http.StatusText(http.StatusInternalServerError)) {
		msg = "Application error"
	}

	return httpCode, msg
}
