package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/evimparca-cloud/stock-sub001/internal/models"
	"github.com/evimparca-cloud/stock-sub001/internal/scheduler"
	"github.com/evimparca-cloud/stock-sub001/internal/service"
	"github.com/evimparca-cloud/stock-sub001/internal/store"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	webhookService *service.WebhookService
	pollService    *service.PollService
	ingestService  *service.IngestService
	store          *store.Store
	cache          service.StockCache
	poller         *scheduler.Poller
}

// NewHandler creates a new HTTP handler
func NewHandler(
	webhookService *service.WebhookService,
	pollService *service.PollService,
	ingestService *service.IngestService,
	st *store.Store,
	cache service.StockCache,
	poller *scheduler.Poller,
) *Handler {
	return &Handler{
		webhookService: webhookService,
		pollService:    pollService,
		ingestService:  ingestService,
		store:          st,
		cache:          cache,
		poller:         poller,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhook/:marketplaceId", h.receiveWebhook)
		v1.POST("/sync", h.triggerSync)

		v1.GET("/webhook-logs", h.listWebhookLogs)
		v1.POST("/webhook-logs/:id/retry", h.retryWebhookLog)
		v1.DELETE("/webhook-logs/:id", h.deleteWebhookLog)

		v1.GET("/orders/:marketplaceOrderId", h.getOrder)
		v1.DELETE("/orders/:marketplaceOrderId", h.deleteOrder)

		v1.GET("/review/products", h.listProductsForReview)
		v1.GET("/products/:id/stock", h.getStock)
		v1.GET("/products/:id/stock-logs", h.getStockLogs)
		v1.POST("/products/:id/stock-adjustments", h.adjustStock)

		v1.GET("/pollers", h.listPollers)
		v1.POST("/pollers/:marketplaceId/start", h.startPoller)
		v1.POST("/pollers/:marketplaceId/stop", h.stopPoller)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// receiveWebhook handles an inbound marketplace webhook. The response
// is always 200: marketplaces blacklist endpoints that answer non-2xx,
// so processing failures travel in the body.
func (h *Handler) receiveWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, service.Outcome{
			Success: false,
			Message: "failed to read request body",
			Error:   err.Error(),
		})
		return
	}

	outcome := h.webhookService.Process(c.Request.Context(), c.Param("marketplaceId"), body)
	c.JSON(http.StatusOK, outcome)
}

// triggerSync handles a poll ingestion trigger
func (h *Handler) triggerSync(c *gin.Context) {
	marketplaceID := c.Query("marketplaceId")
	remoteStatus := c.Query("status")
	if marketplaceID == "" || remoteStatus == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "marketplaceId and status query parameters are required",
		})
		return
	}

	result, err := h.pollService.SyncByStatus(c.Request.Context(), marketplaceID, remoteStatus)
	if err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		resp := gin.H{"success": false, "error": err.Error()}
		if result != nil {
			resp["errors"] = result.Errors
		}
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"total":     result.Total,
		"errors":    result.Errors,
	})
}

// listWebhookLogs handles the operator review listing
func (h *Handler) listWebhookLogs(c *gin.Context) {
	status := models.WebhookStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.webhookService.List(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list webhook logs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// retryWebhookLog replays a failed webhook entry
func (h *Handler) retryWebhookLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook log ID"})
		return
	}

	outcome := h.webhookService.Retry(c.Request.Context(), id)
	c.JSON(http.StatusOK, outcome)
}

// deleteWebhookLog removes a webhook entry
func (h *Handler) deleteWebhookLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook log ID"})
		return
	}

	if err := h.webhookService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook log not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete webhook log",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// getOrder handles get order by marketplace order id
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.store.GetOrderByMarketplaceOrderID(c.Request.Context(), c.Param("marketplaceOrderId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found", "details": err.Error()})
		return
	}

	items, err := h.store.GetOrderItemsByOrderID(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order items",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

// deleteOrder removes an order, restoring stock first when needed
func (h *Handler) deleteOrder(c *gin.Context) {
	order, err := h.store.GetOrderByMarketplaceOrderID(c.Request.Context(), c.Param("marketplaceOrderId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found", "details": err.Error()})
		return
	}

	if err := h.ingestService.DeleteOrder(c.Request.Context(), order.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to delete order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// listProductsForReview lists placeholder products awaiting review
func (h *Handler) listProductsForReview(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	products, err := h.store.ListProductsRequiringReview(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list products",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// getStock returns a product's quantity, served from the advisory
// cache when possible. The cache is display-only; mutations always read
// the database under lock.
func (h *Handler) getStock(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	if qty, hit, err := h.cache.GetCachedStockQuantity(c.Request.Context(), id); err == nil && hit {
		c.JSON(http.StatusOK, gin.H{"product_id": id, "stock_quantity": qty, "cached": true})
		return
	}

	product, err := h.store.GetProductByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "details": err.Error()})
		return
	}
	_ = h.cache.CacheStockQuantity(c.Request.Context(), id, product.StockQuantity, time.Hour)

	c.JSON(http.StatusOK, gin.H{"product_id": id, "stock_quantity": product.StockQuantity, "cached": false})
}

// getStockLogs returns the stock ledger for a product
func (h *Handler) getStockLogs(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.store.GetStockLogsByProduct(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load stock logs",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

type stockAdjustmentRequest struct {
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Type     string `json:"type" binding:"required"`
	Reason   string `json:"reason"`
}

// adjustStock applies a manual stock correction
func (h *Handler) adjustStock(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req stockAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	res, err := h.ingestService.AdjustStock(c.Request.Context(), id, req.Quantity,
		models.StockLogType(req.Type), req.Reason, "operator")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to adjust stock",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"old_stock": res.OldStock,
		"new_stock": res.NewStock,
	})
}

// listPollers returns the marketplaces currently being polled
func (h *Handler) listPollers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"marketplaces": h.poller.List()})
}

// startPoller begins polling for a marketplace
func (h *Handler) startPoller(c *gin.Context) {
	if err := h.poller.Start(c.Param("marketplaceId")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// stopPoller halts polling for a marketplace
func (h *Handler) stopPoller(c *gin.Context) {
	if err := h.poller.Stop(c.Param("marketplaceId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
