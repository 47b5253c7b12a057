package handlers

import (
	"errors"
	"net/http"

	"fulfillment-service/internal/service"
	"fulfillment-service/internal/transport/http/dto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps a service error class onto an HTTP status and the error envelope.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, dto.NewValidationError(err.Error(), nil))
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, dto.NewUnauthorizedError(err.Error()))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, dto.NewForbiddenError(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.NewNotFoundError(err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, dto.NewConflictError(err.Error()))
	case errors.Is(err, service.ErrInvariant):
		log.Error("invariant violation", zap.String("severity", "critical"), zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewInvariantError(err.Error()))
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewInternalError(""))
	}
}

func badRequest(c *gin.Context, log *zap.Logger, msg string, err error) {
	log.Warn("invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, dto.NewValidationError(msg, nil))
}
