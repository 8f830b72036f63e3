package util

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParsePagination extracts limit/offset query params with sane bounds.
// Defaults: limit 20, offset 0. Limit is capped at maxLimit.
func ParsePagination(c *gin.Context, maxLimit int) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if limit <= 0 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
