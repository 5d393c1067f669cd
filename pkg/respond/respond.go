// Package respond writes the success envelope shared by every JSON endpoint.
// Failures are rendered by apperror.HTTPErrorHandler in the same shape.
package respond

import "github.com/labstack/echo/v4"

type Envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func JSON(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{
		Success:    status < 400,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}
