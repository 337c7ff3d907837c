package http

import (
	authhttp "feedback-sync/internal/auth/adapter/http"
	"feedback-sync/internal/feedback/adapter/wire"
	apperrors "feedback-sync/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
)

// CreateDocument handles POST /collections/:collection/documents.
func (h *HTTPHandler) CreateDocument(c *fiber.Ctx) error {
	collection := c.Params("collection")

	var req wire.WriteRequest
	if err := c.BodyParser(&req); err != nil {
		return authhttp.RespondError(c, apperrors.ErrInvalidRequest.New().WithCause(err))
	}
	if req.Data == nil {
		return authhttp.RespondError(c, apperrors.ErrInvalidRequest.New().WithDetail("field", "data"))
	}

	ctx := c.UserContext()
	id, err := h.Store.Write(ctx, collection, wire.DecodeData(req.Data, req.ServerTimestamps))
	if err != nil {
		h.Log.WithContext(ctx).Warnf("write to %s rejected: %v", collection, err)
		return authhttp.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(wire.WriteResponse{ID: id})
}
