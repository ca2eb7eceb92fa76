package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"fundledger/internal/domain"

	"github.com/gin-gonic/gin"
)

// respondError maps ledger errors onto HTTP statuses. Anything untyped is a 500
// and its detail stays in the log.
func respondError(c *gin.Context, err error) {
	var (
		transition  *domain.InvalidTransitionError
		concurrency *domain.ConcurrencyError
	)
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error":        err.Error(),
			"from":         transition.From,
			"to":           transition.To,
			"precondition": transition.Precondition,
		})
	case errors.As(err, &concurrency):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	default:
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
