// Package server wires the HTTP surface: route registration, auth and
// metering middleware, and translation of domain errors into API responses.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billflow/billflow/internal/auth"
	"github.com/billflow/billflow/internal/billing"
	billingdomain "github.com/billflow/billflow/internal/billing/domain"
	"github.com/billflow/billflow/internal/clock"
	"github.com/billflow/billflow/internal/config"
	"github.com/billflow/billflow/internal/dashboard"
	"github.com/billflow/billflow/internal/logger"
	"github.com/billflow/billflow/internal/migration"
	"github.com/billflow/billflow/internal/object"
	objectdomain "github.com/billflow/billflow/internal/object/domain"
	"github.com/billflow/billflow/internal/objectstore"
	"github.com/billflow/billflow/internal/providers/email"
	"github.com/billflow/billflow/internal/providers/pdf"
	"github.com/billflow/billflow/internal/ratelimit"
	"github.com/billflow/billflow/internal/scheduler"
	"github.com/billflow/billflow/internal/usage"
	usagedomain "github.com/billflow/billflow/internal/usage/domain"
	"github.com/billflow/billflow/internal/user"
	userdomain "github.com/billflow/billflow/internal/user/domain"
	"github.com/billflow/billflow/pkg/db"
)

var Module = fx.Module("http.server",
	config.Module,
	logger.Module,
	clock.Module,
	db.Module,
	migration.Module,
	user.Module,
	auth.Module,
	objectstore.Module,
	usage.Module,
	billing.Module,
	object.Module,
	email.Module,
	pdf.Module,
	ratelimit.Module,
	dashboard.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestMetricsMiddleware())
	r.Use(ErrorHandlingMiddleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	clock      clock.Clock
	genID      *snowflake.Node
	authSvc    *auth.Service
	userSvc    userdomain.Service
	usageSvc   usagedomain.Service
	billingSvc billingdomain.Service
	objectSvc  objectdomain.Service
	store      objectstore.Store
	dashboard  *dashboard.Service
	pdfSvc     pdf.Provider
	limiter    *ratelimit.RequestLimiter
	scheduler  *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Clock      clock.Clock
	GenID      *snowflake.Node
	AuthSvc    *auth.Service
	UserSvc    userdomain.Service
	UsageSvc   usagedomain.Service
	BillingSvc billingdomain.Service
	ObjectSvc  objectdomain.Service
	Store      objectstore.Store
	Dashboard  *dashboard.Service
	PDFSvc     pdf.Provider
	Limiter    *ratelimit.RequestLimiter
	Scheduler  *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		db:         p.DB,
		clock:      p.Clock,
		genID:      p.GenID,
		authSvc:    p.AuthSvc,
		userSvc:    p.UserSvc,
		usageSvc:   p.UsageSvc,
		billingSvc: p.BillingSvc,
		objectSvc:  p.ObjectSvc,
		store:      p.Store,
		dashboard:  p.Dashboard,
		pdfSvc:     p.PDFSvc,
		limiter:    p.Limiter,
		scheduler:  p.Scheduler,
	}

	svc.registerAuthRoutes()
	svc.registerUsageRoutes()
	svc.registerBillingRoutes()
	svc.registerObjectRoutes()
	svc.registerAdminRoutes()
	svc.registerTaskRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	api := s.engine.Group("/api")

	api.POST("/register", s.Register)
	api.POST("/login", s.Login)
	api.GET("/profile", s.AuthRequired(), s.Profile)
}

func (s *Server) registerUsageRoutes() {
	usage := s.engine.Group("/api/usage", s.AuthRequired())

	usage.GET("/today", s.TodayUsage)
	usage.GET("/history", s.UsageHistory)
	usage.GET("/monthly/:year/:month", s.MonthlySummary)
	usage.GET("/current-month", s.CurrentMonthSummary)
	usage.GET("/alltime", s.AllTimeStats)
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/api/billing", s.AuthRequired())

	billing.GET("/estimate", s.CurrentEstimate)
	billing.GET("/calculate/:year/:month", s.CalculateBill)
	billing.POST("/generate", s.GenerateInvoice)
	billing.GET("/invoices", s.ListInvoices)
	billing.GET("/invoices/:id", s.GetInvoice)
	billing.POST("/invoices/:id/pay", s.PayInvoice)
	billing.GET("/invoices/:id/pdf", s.InvoicePDF)
}

func (s *Server) registerObjectRoutes() {
	objects := s.engine.Group("/api/objects", s.AuthRequired())

	objects.POST("/upload", s.UploadObject)
	objects.GET("/list", s.ListObjects)
	objects.GET("/download/:filename", s.DownloadObject)
	objects.DELETE("/:filename", s.DeleteObject)
	objects.GET("/storage-summary", s.StorageSummary)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired(), s.RequireAdmin())

	admin.GET("/overview", s.AdminOverview)
	admin.GET("/users", s.AdminListUsers)
	admin.GET("/users/:id", s.AdminUserDetail)
	admin.PUT("/users/:id/role", s.AdminUpdateRole)
	admin.GET("/invoices", s.AdminAllInvoices)
	admin.POST("/users/:id/generate-invoice", s.AdminGenerateInvoice)
	admin.POST("/invoices/:id/pay", s.AdminPayInvoice)
	admin.GET("/platform-stats", s.AdminPlatformStats)
}

func (s *Server) registerTaskRoutes() {
	tasks := s.engine.Group("/api/tasks", s.AuthRequired(), s.RequireAdmin())

	tasks.POST("/:name", s.TriggerJob)
}
