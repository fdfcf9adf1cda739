package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/taskora-dev/taskora/internal/ledger/domain"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	settlementdomain "github.com/taskora-dev/taskora/internal/settlement/domain"
	"go.uber.org/zap"
)

type callbackRequest struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

type initiateRequest struct {
	ProviderID       string `json:"provider_id" binding:"required"`
	SubscriptionType string `json:"subscription_type" binding:"required"`
	DurationMonths   int    `json:"duration_months"`
}

// PaymentCallback
// POST /payment/callback
// POST /premium/callback
func (s *Server) PaymentCallback(c *gin.Context) {
	if !s.verifyCallbackToken(c) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req callbackRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Token == "" || req.Status == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := settlementdomain.NormalizeStatus(req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.settlementSvc.Reconcile(c.Request.Context(), req.Token, outcome, raw); err != nil {
		// A conflicting settlement is already alarmed and counted inside the
		// reconciler; answering non-200 would only make the gateway retry a
		// report that can never be applied.
		if errors.Is(err, ledgerdomain.ErrConflictingSettlement) {
			respondData(c, gin.H{"received": true, "applied": false})
			return
		}
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"received": true})
}

// verifyCallbackToken checks the shared secret the gateway echoes back on
// every webhook. Compared in constant time; an unconfigured secret rejects
// everything rather than accepting everything.
func (s *Server) verifyCallbackToken(c *gin.Context) bool {
	expected := s.cfg.Gateway.CallbackToken
	if expected == "" {
		s.log.Warn("callback token not configured, rejecting webhook")
		return false
	}
	got := c.GetHeader("X-Callback-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// VerifyCheckout
// GET /premium/verify/:token
func (s *Server) VerifyCheckout(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.settlementSvc.VerifyByToken(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{
		"status":      result.Outcome,
		"provider_id": result.Attempt.ProviderID.String(),
		"tier":        result.Attempt.Tier,
		"paid_at":     result.Attempt.PaidAt,
		"expires_at":  result.Attempt.ExpiresAt,
	})
}

// InitiateCheckout
// POST /premium/initiate
func (s *Server) InitiateCheckout(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	providerID, err := snowflake.ParseString(req.ProviderID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier, err := providerdomain.ParseTier(req.SubscriptionType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	months := req.DurationMonths
	if months == 0 {
		months = 1
	}

	checkout, err := s.settlementSvc.Initiate(c.Request.Context(), providerID, tier, months)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("checkout created",
		zap.String("provider_id", providerID.String()),
		zap.String("token", checkout.Token))

	respondData(c, gin.H{
		"token":       checkout.Token,
		"payment_url": checkout.CheckoutURL,
		"amount":      checkout.AmountCents,
	})
}
