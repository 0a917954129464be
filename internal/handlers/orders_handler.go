package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-exactly-once-orders/internal/idempotency"
	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
	"github.com/imrishuroy/go-exactly-once-orders/internal/validation"
)

// Request headers read by the orders API.
const (
	HeaderIdempotencyKey  = "Idempotency-Key"
	HeaderFailAfterCommit = "X-Debug-Fail-After-Commit"
)

// CreateCoordinator runs a create-order request under its idempotency key.
type CreateCoordinator interface {
	Handle(ctx context.Context, req idempotency.Request) (*idempotency.Response, error)
}

// OrderReader looks up committed orders.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// ViewReader looks up orders in the projected read model.
type ViewReader interface {
	Get(ctx context.Context, orderID string) (*orders.View, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Coordinator CreateCoordinator
	Orders      OrderReader
	// Views serves GET /orders/:id/view when set.
	Views ViewReader
	// RetryAfter is advertised when the store's write lock times out.
	RetryAfter time.Duration
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Second
	}

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		// Require idempotency key header
		idempKey := c.GetHeader(HeaderIdempotencyKey)
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Idempotency-Key header"})
			return
		}
		if err := validation.ValidateIdempotencyKey(v, idempKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Idempotency-Key header"})
			return
		}

		// Bind + validate request
		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		resp, err := cfg.Coordinator.Handle(ctx, idempotency.Request{
			Key:                        idempKey,
			Payload:                    req.ToInput(),
			SimulateFailureAfterCommit: debugFlag(c.GetHeader(HeaderFailAfterCommit)),
		})
		if err != nil {
			_ = c.Error(err)
			switch {
			case errors.Is(err, storage.ErrLockTimeout):
				c.Header("Retry-After", retryAfterSeconds(cfg.RetryAfter))
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Order store busy, retry later"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			return
		}

		if resp.StatusCode == http.StatusCreated && resp.OrderID != "" {
			c.Header("Location", fmt.Sprintf("/orders/%s", resp.OrderID))
		}
		// stored bodies are replayed byte-for-byte
		c.Data(resp.StatusCode, "application/json", resp.Body)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		order, err := cfg.Orders.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			logger.FromContext(c.Request.Context()).Error("orders.get.failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})

	if cfg.Views == nil {
		return
	}
	r.GET("/orders/:id/view", func(c *gin.Context) {
		view, err := cfg.Views.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			_ = c.Error(err)
			logger.FromContext(c.Request.Context()).Error("orders.view.failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if view == nil {
			// not projected yet, or unknown
			c.JSON(http.StatusNotFound, gin.H{"error": "Order view not found"})
			return
		}
		c.JSON(http.StatusOK, view)
	})
}

func debugFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
