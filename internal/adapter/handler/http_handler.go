package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/rl1809/stockkeeper/internal/core/domain"
	"github.com/rl1809/stockkeeper/internal/core/service"
	"github.com/rl1809/stockkeeper/internal/port"
	"github.com/rl1809/stockkeeper/internal/validate"
)

const maxEventPage = 1000

type HTTPHandler struct {
	inventory   *service.InventoryService
	orders      *service.OrderService
	fulfillment *service.FulfillmentService
	events      port.EventNotifier
	logger      *zap.Logger
}

type CreateItemRequest struct {
	Name string `json:"name"`
	SKU  string `json:"sku"`
	Type string `json:"type"`
	Unit string `json:"unit"`
}

type AddStockRequest struct {
	ItemID   int64  `json:"itemId"`
	Location string `json:"location"`
	Quantity int    `json:"quantity"`
}

type CreateOrderRequest struct {
	OrderNumber string             `json:"orderNumber"`
	Items       []domain.OrderLine `json:"items"`
}

type FulfillOrderRequest struct {
	Location string `json:"location"`
}

type AvailableResponse struct {
	ItemID    int64  `json:"itemId"`
	Location  string `json:"location,omitempty"`
	Available int    `json:"available"`
}

func NewHTTPHandler(
	inventory *service.InventoryService,
	orders *service.OrderService,
	fulfillment *service.FulfillmentService,
	events port.EventNotifier,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		inventory:   inventory,
		orders:      orders,
		fulfillment: fulfillment,
		events:      events,
		logger:      logger,
	}
}

// NewApp builds the fiber app with middleware and all routes registered.
func NewApp(h *HTTPHandler, logger *zap.Logger, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "stockkeeper",
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if accessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "[${time}] ${status} - ${method} ${path} - ${latency} ${locals:requestid}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	h.Register(app)

	app.Use("*", func(c *fiber.Ctx) error {
		return errorResponse(c, fiber.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	return app
}

func (h *HTTPHandler) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	api := app.Group("/api/v1")
	api.Post("/items", h.CreateItem)
	api.Get("/items/:id/available", h.Available)
	api.Post("/stock", h.AddStock)
	api.Post("/orders", h.CreateOrder)
	api.Get("/orders/:id", h.GetOrder)
	api.Post("/orders/:id/fulfill", h.FulfillOrder)
	api.Get("/events", h.ListEvents)
}

func (h *HTTPHandler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *HTTPHandler) CreateItem(c *fiber.Ctx) error {
	var req CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
	}

	item, err := h.inventory.CreateItem(c.UserContext(), req.Name, req.SKU, req.Type, req.Unit)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "item created", item)
}

func (h *HTTPHandler) AddStock(c *fiber.Ctx) error {
	var req AddStockRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
	}
	if req.ItemID <= 0 {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "itemId is required", nil)
	}

	entry, err := h.inventory.AddStock(c.UserContext(), req.ItemID, req.Location, req.Quantity)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "stock added", entry)
}

func (h *HTTPHandler) Available(c *fiber.Ctx) error {
	itemID, ok := pathID(c)
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid item id", nil)
	}

	location := strings.TrimSpace(c.Query("location"))
	if location != "" {
		if location, ok = validate.Location(location); !ok {
			return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid location", nil)
		}
	}

	available, err := h.inventory.Available(c.UserContext(), itemID, location)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusOK, "ok", AvailableResponse{
		ItemID:    itemID,
		Location:  location,
		Available: available,
	})
}

func (h *HTTPHandler) CreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
	}

	order, err := h.orders.CreateOrder(c.UserContext(), req.OrderNumber, req.Items)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "order created", order)
}

func (h *HTTPHandler) GetOrder(c *fiber.Ctx) error {
	orderID, ok := pathID(c)
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid order id", nil)
	}

	order, err := h.orders.GetOrder(c.UserContext(), orderID)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusOK, "ok", order)
}

func (h *HTTPHandler) FulfillOrder(c *fiber.Ctx) error {
	orderID, ok := pathID(c)
	if !ok {
		return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid order id", nil)
	}

	var req FulfillOrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
		}
	}
	location := strings.TrimSpace(req.Location)
	if location != "" {
		if location, ok = validate.Location(location); !ok {
			return errorResponse(c, fiber.StatusBadRequest, CodeBadRequest, "invalid location", nil)
		}
	}

	requestID := c.Get(fiber.HeaderXRequestID)
	order, err := h.fulfillment.Fulfill(c.UserContext(), requestID, orderID, location)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusOK, "order fulfilled", order)
}

func (h *HTTPHandler) ListEvents(c *fiber.Ctx) error {
	limit := validate.Limit(c.QueryInt("limit", 0), maxEventPage)

	events, err := h.events.List(c.UserContext(), limit)
	if err != nil {
		return h.writeError(c, err)
	}
	return successResponse(c, fiber.StatusOK, "ok", events)
}

func pathID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}
