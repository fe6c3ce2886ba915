// handlers/errors.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/services"
)

// IDsRequest is the body of batch deletions.
type IDsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var batch *services.BatchError
	switch {
	case errors.As(err, &batch):
		c.JSON(http.StatusConflict, gin.H{
			"error":     batch.Error(),
			"failed":    batch.Failed,
			"requested": batch.Requested,
		})
	case errors.As(err, &validation):
		body := gin.H{"error": validation.Message, "code": validation.Code}
		if validation.Field != "" {
			body["field"] = validation.Field
		}
		if validation.Arg != 0 {
			body["arg"] = validation.Arg
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, persistence.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, persistence.ErrAlreadyExists), errors.Is(err, persistence.ErrInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// paramID parses a positive int64 path parameter, answering 400 otherwise.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
