package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the uniform JSON envelope for every API endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a 200 response with the given payload.
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Code:    http.StatusOK,
	})
}

// RespondError writes an error response with the given status and message.
func RespondError(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{
		Success: false,
		Message: message,
		Code:    status,
	})
}
