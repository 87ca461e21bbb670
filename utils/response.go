package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends data as the JSON body
func JSONResponse(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// JSONError sends {"error": message} merged with any extra fields
func JSONError(c *gin.Context, status int, message string, extra gin.H) {
	body := gin.H{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
