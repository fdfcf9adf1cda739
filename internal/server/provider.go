package server

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
)

type registerProviderRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Tier  string `json:"tier"`
}

type autoRenewRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type providerView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Tier      string     `json:"tier"`
	IsPremium bool       `json:"is_premium"`
	AutoRenew bool       `json:"auto_renew"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	IsHidden  bool       `json:"is_hidden"`
	IsLocked  bool       `json:"is_locked"`
}

func (s *Server) providerView(p *providerdomain.Provider, now time.Time) providerView {
	return providerView{
		ID:        p.ID.String(),
		Name:      p.Name,
		Email:     p.Email,
		Tier:      string(p.Tier),
		IsPremium: p.Premium(now),
		AutoRenew: p.AutoRenew,
		ExpiresAt: p.ExpiresAt,
		StartedAt: p.StartedAt,
		IsHidden:  p.IsHidden,
		IsLocked:  p.Locked(now),
	}
}

// RegisterProvider
// POST /providers
func (s *Server) RegisterProvider(c *gin.Context) {
	var req registerProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier := providerdomain.TierFree
	if req.Tier != "" {
		parsed, err := providerdomain.ParseTier(req.Tier)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		tier = parsed
	}

	ctx := c.Request.Context()
	provider, err := s.providerSvc.Register(ctx, providerdomain.RegisterRequest{
		Name:  req.Name,
		Email: req.Email,
		Tier:  tier,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := gin.H{"provider": s.providerView(provider, s.clock.Now(ctx))}

	// A paid signup gets its checkout in the same response; the provider
	// stays on the free tier until the payment settles.
	if tier.Paid() {
		checkout, err := s.settlementSvc.Initiate(ctx, provider.ID, tier, 1)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		body["checkout"] = gin.H{
			"token":       checkout.Token,
			"payment_url": checkout.CheckoutURL,
			"amount":      checkout.AmountCents,
		}
	}

	respondData(c, body)
}

// GetProvider
// GET /providers/:id
func (s *Server) GetProvider(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	provider, err := s.providerSvc.GetByID(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"provider": s.providerView(provider, s.clock.Now(ctx))})
}

// SetAutoRenew
// POST /providers/:id/auto-renew
func (s *Server) SetAutoRenew(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req autoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.providerSvc.SetAutoRenew(c.Request.Context(), id, *req.Enabled); err != nil {
		AbortWithError(c, err)
		return
	}

	respondData(c, gin.H{"auto_renew": *req.Enabled})
}
