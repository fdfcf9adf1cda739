package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskora-dev/taskora/internal/clock"
	"github.com/taskora-dev/taskora/internal/config"
	"github.com/taskora-dev/taskora/internal/observability"
	providerdomain "github.com/taskora-dev/taskora/internal/provider/domain"
	settlementdomain "github.com/taskora-dev/taskora/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	log           *zap.Logger
	cfg           config.Config
	db            *gorm.DB
	clock         clock.Clock
	providerSvc   providerdomain.Service
	settlementSvc settlementdomain.Service
	metrics       *observability.Metrics
}

type Params struct {
	fx.In

	Log           *zap.Logger
	Config        config.Config
	DB            *gorm.DB
	Clock         clock.Clock
	ProviderSvc   providerdomain.Service
	SettlementSvc settlementdomain.Service
	Metrics       *observability.Metrics
}

func NewServer(p Params) *Server {
	return &Server{
		log:           p.Log.Named("server"),
		cfg:           p.Config,
		db:            p.DB,
		clock:         p.Clock,
		providerSvc:   p.ProviderSvc,
		settlementSvc: p.SettlementSvc,
		metrics:       p.Metrics,
	}
}

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log.Named("http")))
	return engine
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() >= 500 {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", c.Writer.Status()))
		}
	}
}

func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/readyz", s.Readyz)
	engine.GET("/metrics", s.MetricsHandler())

	engine.POST("/providers", s.RegisterProvider)
	engine.GET("/providers/:id", s.GetProvider)
	engine.POST("/providers/:id/auto-renew", s.SetAutoRenew)

	engine.POST("/premium/initiate", s.InitiateCheckout)
	engine.GET("/premium/verify/:token", s.VerifyCheckout)
	engine.POST("/premium/callback", s.PaymentCallback)
	engine.POST("/payment/callback", s.PaymentCallback)

	admin := engine.Group("/admin", s.requireAdminKey())
	admin.POST("/providers/:id/lock", s.LockProvider)
	admin.POST("/providers/:id/unlock", s.UnlockProvider)
	admin.POST("/providers/:id/hide", s.HideProvider)
	admin.POST("/providers/:id/show", s.ShowProvider)
}

func RegisterRoutes(engine *gin.Engine, s *Server) {
	s.RegisterRoutes(engine)
}

func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
