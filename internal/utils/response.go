package utils

import "github.com/gin-gonic/gin"

func SuccessResponse(message string, data interface{}) gin.H {
	return gin.H{
		"success": true,
		"message": message,
		"data":    data,
	}
}

func ErrorResponse(message, details string) gin.H {
	resp := gin.H{
		"success": false,
		"error":   message,
	}
	if details != "" {
		resp["details"] = details
	}
	return resp
}
