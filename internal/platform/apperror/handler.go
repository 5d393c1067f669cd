package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Response is the JSON body written for every failed request.
type Response struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
}

// ToResponse converts any error into the JSON error body. Internal causes
// are never exposed.
func ToResponse(err error) Response {
	if ae, ok := As(err); ok {
		msg := ae.Message
		if ae.Kind == KindInternal {
			msg = "internal server error"
			if ae.Code == CodePersistenceFailure {
				msg = ae.Message
			}
		}
		return Response{StatusCode: ae.Status(), Code: ae.Code, Message: msg}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprintf("%v", he.Message)
		}
		return Response{StatusCode: he.Code, Message: msg}
	}

	return Response{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "internal server error",
	}
}

// HTTPErrorHandler returns an echo error handler that renders errors as
// Response bodies and logs server-side failures.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := ToResponse(err)
		if resp.StatusCode >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(resp.StatusCode)
		} else {
			err = c.JSON(resp.StatusCode, resp)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
