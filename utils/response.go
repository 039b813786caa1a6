package utils

import "github.com/gin-gonic/gin"

// Success writes {success:true, ...fields} with the given status code.
func Success(ctx *gin.Context, status int, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	ctx.JSON(status, body)
}

// Fail writes the error envelope {success:false, error, details, ...extra}.
// errCode is a short human-readable code; details carries the specifics.
func Fail(ctx *gin.Context, status int, errCode, details string, extra gin.H) {
	body := gin.H{
		"success": false,
		"error":   errCode,
		"details": details,
	}
	for k, v := range extra {
		body[k] = v
	}
	ctx.JSON(status, body)
}
