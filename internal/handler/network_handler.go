package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"netfinder/internal/cache"
	"netfinder/internal/model"
	"netfinder/internal/service"
)

type NetworkService interface {
	Lookup(ctx context.Context, ip string) (*model.LookupResult, error)
	LookupBatch(ctx context.Context, ips []string) []model.BatchItem
	CacheStats() cache.Stats
}

type Handler struct {
	service      NetworkService
	maxBatchSize int
	logger       *zap.Logger
}

func NewHandler(service NetworkService, maxBatchSize int, logger *zap.Logger) *Handler {
	return &Handler{
		service:      service,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/v1/lookup/:ip", h.Lookup)
	app.Get("/api/v1/lookup/:ip/text", h.LookupText)
	app.Post("/api/v1/lookup", h.LookupBatch)
	app.Get("/api/v1/health", h.HealthCheck)
}

func (h *Handler) Lookup(c *fiber.Ctx) error {
	result, ok, err := h.lookup(c)
	if !ok {
		return err
	}
	return c.JSON(result)
}

func (h *Handler) LookupText(c *fiber.Ctx) error {
	result, ok, err := h.lookup(c)
	if !ok {
		return err
	}
	return c.SendString(service.Format(result) + "\n")
}

// lookup writes the error response itself and reports ok=false when it did.
func (h *Handler) lookup(c *fiber.Ctx) (*model.LookupResult, bool, error) {
	// Params points into the pooled request buffer; the address outlives
	// the request as a cache key.
	ip := utils.CopyString(c.Params("ip"))
	if ip == "" {
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(model.Error{
			Message: "IP address is required",
		})
	}

	result, err := h.service.Lookup(c.Context(), ip)
	if err == nil {
		return result, true, nil
	}

	if errors.Is(err, model.ErrInvalidAddress) {
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(model.Error{
			Message: fmt.Sprintf("Invalid IP address format: %s", ip),
		})
	}

	h.logger.Error("IP lookup failed",
		zap.String("ip", ip),
		zap.Error(err))

	return nil, false, c.Status(fiber.StatusInternalServerError).JSON(model.Error{
		Message: "Failed to lookup IP address",
	})
}

func (h *Handler) LookupBatch(c *fiber.Ctx) error {
	var req model.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.Error{
			Message: "Invalid request body",
		})
	}

	if len(req.IPs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(model.Error{
			Message: "At least one IP address is required",
		})
	}
	if len(req.IPs) > h.maxBatchSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(model.Error{
			Message: fmt.Sprintf("Too many IP addresses, maximum is %d", h.maxBatchSize),
		})
	}

	return c.JSON(fiber.Map{
		"results": h.service.LookupBatch(c.Context(), req.IPs),
	})
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	response := fiber.Map{
		"status": "healthy",
	}
	if h.service != nil {
		response["cache"] = h.service.CacheStats()
	}
	return c.JSON(response)
}
