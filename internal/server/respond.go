package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/service"
)

// respondError maps service errors onto HTTP statuses. The message is the
// error text itself; services already phrase their errors for operators.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var (
		validation  *service.ValidationError
		conflict    *service.ConflictError
		upstream    *service.UpstreamError
		consistency *service.ConsistencyError
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
	case errors.As(err, &consistency):
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("Request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"status":  "error",
		"message": err.Error(),
	})
}
