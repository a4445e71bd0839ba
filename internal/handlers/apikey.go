package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/appointment-gateway/internal/apperr"
	"github.com/Ananth-NQI/appointment-gateway/internal/middleware"
	"github.com/Ananth-NQI/appointment-gateway/internal/services"
)

// APIKeyHandler administers provider credentials. Routes are expected to
// sit behind the admin guard.
type APIKeyHandler struct {
	keys *services.APIKeyService
}

func NewAPIKeyHandler(keys *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

type storeAPIKeyRequest struct {
	PurposeID   string `json:"purpose_id" validate:"required,uuid"`
	PurposeName string `json:"purpose_name" validate:"required,max=255"`
	APIKey      string `json:"api_key" validate:"required,min=10"`
}

func (h *APIKeyHandler) Index(c *fiber.Ctx) error {
	keys, err := h.keys.List(c.UserContext())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "API keys retrieved successfully", keys)
}

// Store creates or replaces the key for a purpose.
func (h *APIKeyHandler) Store(c *fiber.Ctx) error {
	var req storeAPIKeyRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	info, created, err := h.keys.Store(c.UserContext(), services.StoreAPIKeyRequest{
		PurposeID:   req.PurposeID,
		PurposeName: req.PurposeName,
		APIKey:      req.APIKey,
	})
	if err != nil {
		return err
	}
	if created {
		return success(c, fiber.StatusCreated, "API key stored successfully", info)
	}
	return success(c, fiber.StatusOK, "API key updated successfully", info)
}

func (h *APIKeyHandler) Toggle(c *fiber.Ctx) error {
	id, err := keyID(c)
	if err != nil {
		return err
	}
	info, err := h.keys.Toggle(c.UserContext(), id)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "API key status updated successfully", info)
}

func (h *APIKeyHandler) Delete(c *fiber.Ctx) error {
	id, err := keyID(c)
	if err != nil {
		return err
	}
	if err := h.keys.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, "API key deleted successfully", nil)
}

func keyID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.NotFound, "API key not found")
	}
	return uint(id), nil
}
