package utils

import (
	"auction-sync/internal/biddingerrors"

	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	})
}

// JSONRejection sends a ledger rejection. Clients read the verdict from "reason".
func JSONRejection(c *gin.Context, status int, reason biddingerrors.RejectReason, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   reason.Err().Error(),
		"reason":  reason,
	})
}
