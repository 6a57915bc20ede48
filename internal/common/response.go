package common

import "github.com/gin-gonic/gin"

// OK writes the success envelope. Payload keys are merged at the top level
// so clients read {"success":true,"session_id":...} rather than a nested blob.
func OK(c *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(200, body)
}

// Fail writes the error envelope with a stable machine-readable code.
func Fail(c *gin.Context, httpStatus int, code string, msg string) {
	c.JSON(httpStatus, gin.H{
		"success": false,
		"code":    code,
		"error":   msg,
	})
}
