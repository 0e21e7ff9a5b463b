package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/listening-room-system/pkg/apperr"
)

// AbortWithError writes err as {"error", "code"} with its mapped status.
// Internal errors are logged and reported without detail.
func AbortWithError(c *gin.Context, err error) {
	if apperr.IsInternal(err) {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(apperr.Status(err), gin.H{
		"error": apperr.Message(err),
		"code":  apperr.Code(err),
	})
}
