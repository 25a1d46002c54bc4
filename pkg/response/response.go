package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/hearthly/hearth/pkg/errors"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes collection metadata.
type Meta struct {
	Total      int   `json:"total,omitempty"`
	ServerTime int64 `json:"server_time,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta writes a JSON success response including metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}

// Envelope is the client-side view of Response with the data left undecoded.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
}

// DecodeEnvelope parses a response body. Non-success envelopes and non-2xx
// statuses are returned as *AppError values carrying the server's code.
func DecodeEnvelope(statusCode int, body []byte) (*Envelope, error) {
	var env Envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			if statusCode >= http.StatusBadRequest {
				return nil, appErrors.FromStatus(statusCode, "", "")
			}
			return nil, fmt.Errorf("response: decode envelope: %w", err)
		}
	}

	if statusCode >= http.StatusBadRequest || !env.Success {
		code, message := "", ""
		if env.Error != nil {
			code, message = env.Error.Code, env.Error.Message
		}
		if statusCode < http.StatusBadRequest {
			statusCode = http.StatusBadGateway
		}
		return &env, appErrors.FromStatus(statusCode, code, message)
	}

	return &env, nil
}
