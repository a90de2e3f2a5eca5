package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cardora-service/internal/models"
	"cardora-service/internal/provider"
	"cardora-service/internal/service"
	"cardora-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxWebhookBody = 64 << 10

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkout  *service.CheckoutService
	ingestor  *service.PaymentIngestor
	invites   *service.InviteService
	rsvps     *service.RSVPService
	jwtSecret []byte
	checks    map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	ingestor *service.PaymentIngestor,
	invites *service.InviteService,
	rsvps *service.RSVPService,
	jwtSecret []byte,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		checkout:  checkout,
		ingestor:  ingestor,
		invites:   invites,
		rsvps:     rsvps,
		jwtSecret: jwtSecret,
		checks:    checks,
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
		v1.POST("/checkout", h.createCheckout)
		v1.POST("/webhooks/payments", h.paymentWebhook)
		v1.POST("/payments/verify", h.verifyPayment)
		v1.GET("/invites/:slug", h.getInvite)
		v1.POST("/rsvp/submit", h.submitRSVP)
	}

	authed := v1.Group("")
	authed.Use(authMiddleware(h.jwtSecret))
	{
		authed.POST("/unlock/verify", h.unlockAfterVerify)
		authed.GET("/payments", h.listPayments)
		authed.GET("/entitlements", h.getEntitlements)
		authed.PUT("/invite", h.saveInvite)
		authed.GET("/rsvp", h.listRSVPs)
		authed.DELETE("/rsvp/:id", h.deleteRSVP)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createCheckout opens a hosted checkout session
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ValidationError",
			"details": err.Error(),
		})
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.checkout.CreateCheckout(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// paymentWebhook ingests a signed provider notification
func (h *Handler) paymentWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ValidationError",
			"details": "unreadable body",
		})
		return
	}

	if err := h.ingestor.HandleWebhook(c.Request.Context(), payload, c.GetHeader(provider.SignatureHeader)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// verifyPayment re-checks a session with the provider after redirect-back
func (h *Handler) verifyPayment(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ValidationError",
			"details": err.Error(),
		})
		return
	}

	res, err := h.ingestor.VerifySession(c.Request.Context(), req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// unlockAfterVerify verifies the caller's session and reports entitlements
func (h *Handler) unlockAfterVerify(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ValidationError",
			"details": err.Error(),
		})
		return
	}

	res, err := h.ingestor.UnlockAfterVerify(c.Request.Context(), accountID(c), req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) listPayments(c *gin.Context) {
	records, err := h.checkout.ListPayments(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": records})
}

func (h *Handler) getEntitlements(c *gin.Context) {
	ent, err := h.invites.GetEntitlements(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ent)
}

// saveInvite creates or edits the caller's invite
func (h *Handler) saveInvite(c *gin.Context) {
	var invite models.InviteItem
	if err := c.ShouldBindJSON(&invite); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ValidationError",
			"details": err.Error(),
		})
		return
	}

	created, err := h.invites.SaveInvite(c.Request.Context(), accountID(c), &invite)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, created)
}

func (h *Handler) getInvite(c *gin.Context) {
	invite, err := h.invites.GetPublicInvite(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invite)
}

// submitRSVP stores a public guest response
func (h *Handler) submitRSVP(c *gin.Context) {
	if !h.rsvps.AllowSubmission(c.Request.Context(), c.ClientIP()) {
		respondError(c, service.ErrRateLimited)
		return
	}

	var req service.SubmitRSVPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ValidationError",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.rsvps.Submit(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listRSVPs(c *gin.Context) {
	listing, err := h.rsvps.List(c.Request.Context(), accountID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (h *Handler) deleteRSVP(c *gin.Context) {
	if err := h.rsvps.Delete(c.Request.Context(), accountID(c), c.Param("id")); err != nil {
		respondError(c, err)
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
