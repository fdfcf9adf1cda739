package server

import (
	"crypto/subtle"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type lockRequest struct {
	Until  *time.Time `json:"until"`
	Reason string     `json:"reason"`
}

type moderationRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) requireAdminKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.AdminAPIKey
		if expected == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		got := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) adminProviderID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return 0, false
	}
	return id, true
}

// LockProvider
// POST /admin/providers/:id/lock
func (s *Server) LockProvider(c *gin.Context) {
	id, ok := s.adminProviderID(c)
	if !ok {
		return
	}

	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.providerSvc.Lock(c.Request.Context(), id, req.Until, req.Reason); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"locked": true})
}

// UnlockProvider
// POST /admin/providers/:id/unlock
func (s *Server) UnlockProvider(c *gin.Context) {
	id, ok := s.adminProviderID(c)
	if !ok {
		return
	}
	if err := s.providerSvc.Unlock(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"locked": false})
}

// HideProvider
// POST /admin/providers/:id/hide
func (s *Server) HideProvider(c *gin.Context) {
	id, ok := s.adminProviderID(c)
	if !ok {
		return
	}

	var req moderationRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.providerSvc.Hide(c.Request.Context(), id, req.Reason); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"hidden": true})
}

// ShowProvider
// POST /admin/providers/:id/show
func (s *Server) ShowProvider(c *gin.Context) {
	id, ok := s.adminProviderID(c)
	if !ok {
		return
	}
	if err := s.providerSvc.Show(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"hidden": false})
}
