package rest

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/errs"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorTable = []errorMapping{
	{errs.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{errs.ErrTemporaryUnavailable, http.StatusServiceUnavailable, "temporarily_unavailable"},
	{errs.ErrInvalidIdentifier, http.StatusBadRequest, "invalid_identifier"},
	{errs.ErrSelfReference, http.StatusBadRequest, "self_reference"},
	{errs.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{errs.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
	{errs.ErrBlocked, http.StatusForbidden, "blocked"},
	{errs.ErrFeatureDisabled, http.StatusForbidden, "feature_disabled"},
	{errs.ErrNotFound, http.StatusNotFound, "not_found"},
	{errs.ErrAlreadyFriends, http.StatusConflict, "already_friends"},
	{errs.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{errs.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{errs.ErrExpired, http.StatusGone, "expired"},
	{errs.ErrLimitExceeded, http.StatusUnprocessableEntity, "limit_exceeded"},
}

// writeError maps an engine error to its HTTP status and a stable code.
// Infrastructure failures are logged; their detail is not sent.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	for _, m := range errorTable {
		if !errors.Is(err, m.err) {
			continue
		}
		body := gin.H{"error": err.Error(), "errcode": m.code}
		switch m.status {
		case http.StatusTooManyRequests:
			if d, ok := errs.RetryAfter(err); ok {
				secs := int(math.Ceil(d.Seconds()))
				c.Header("Retry-After", strconv.Itoa(secs))
				body["retry_after_ms"] = d.Milliseconds()
			}
		case http.StatusServiceUnavailable:
			logger.Warn("friends backend unavailable", zap.String("path", c.FullPath()), zap.Error(err))
			c.Header("Retry-After", "1")
			body["error"] = "temporarily unavailable"
		}
		c.JSON(m.status, body)
		return
	}
	logger.Error("unmapped friends error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "errcode": "internal"})
}
