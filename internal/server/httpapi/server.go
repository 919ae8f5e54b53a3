// Package httpapi is the JSON transport consumed by the rendering layer.
// Handlers validate at the boundary, call into the services and map the
// error taxonomy onto status codes; no HTML is produced here.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/accounts"
	"github.com/goldflix/goldflix/internal/server/appconfig"
	"github.com/goldflix/goldflix/internal/server/backup"
	"github.com/goldflix/goldflix/internal/server/catalog"
	"github.com/goldflix/goldflix/internal/server/config"
	"github.com/goldflix/goldflix/internal/server/ratelimit"
	"github.com/goldflix/goldflix/internal/server/search"
	"github.com/goldflix/goldflix/internal/server/streamtoken"
)

type Server struct {
	catalog  *catalog.Service
	search   *search.Engine
	tokens   *streamtoken.Service
	limiter  *ratelimit.Limiter
	accounts *accounts.Service
	appcfg   *appconfig.Service
	backups  *backup.Service
	s3       *backup.S3Store
	cfg      *config.Config
	log      logging.Logger
	now      func() time.Time
}

// Deps bundles everything the transport needs.
type Deps struct {
	Catalog  *catalog.Service
	Search   *search.Engine
	Tokens   *streamtoken.Service
	Limiter  *ratelimit.Limiter
	Accounts *accounts.Service
	AppCfg   *appconfig.Service
	Backups  *backup.Service
	S3       *backup.S3Store
	Config   *config.Config
	Log      logging.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		catalog:  d.Catalog,
		search:   d.Search,
		tokens:   d.Tokens,
		limiter:  d.Limiter,
		accounts: d.Accounts,
		appcfg:   d.AppCfg,
		backups:  d.Backups,
		s3:       d.S3,
		cfg:      d.Config,
		log:      d.Log,
		now:      time.Now,
	}
}

// Router assembles the gin engine with the full route table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.clientIP())
	r.Use(s.banGate())
	r.Use(s.rateLimit())
	r.Use(s.maintenanceGate())

	r.GET("/api/latest", s.handleLatest)
	r.GET("/api/list", s.handleList)
	r.GET("/api/search", s.handleSearch)
	r.GET("/api/movie/:id", s.handleMovie)
	r.GET("/api/config", s.handlePublicConfig)
	r.GET("/api/resolve-url", s.handleResolveURL)
	r.GET("/stream/:token", s.handleStream)
	r.GET("/dl/:token", s.handleDownload)

	r.POST("/api/signup", s.handleSignup)
	r.POST("/api/login", s.handleLogin)
	r.POST("/api/buy-movie", s.handleBuyMovie)
	r.POST("/api/favorite", s.handleFavorite)
	r.POST("/api/redeem", s.handleRedeem)
	r.GET("/api/me", s.handleMe)

	admin := r.Group("/admin")
	admin.POST("/login", s.handleAdminLogin)
	guarded := admin.Group("", s.adminGuard())
	{
		guarded.POST("/movies", s.handleAdminSaveMovie)
		guarded.DELETE("/movies/:id", s.handleAdminDeleteMovie)
		guarded.GET("/drafts", s.handleAdminListDrafts)
		guarded.POST("/drafts", s.handleAdminSaveDraft)
		guarded.DELETE("/drafts/:id", s.handleAdminDeleteDraft)
		guarded.POST("/drafts/:id/publish", s.handleAdminPublishDraft)
		guarded.POST("/drafts/publish-all", s.handleAdminPublishAll)
		guarded.POST("/reindex", s.handleAdminReindex)
		guarded.POST("/repair", s.handleAdminRepair)
		guarded.GET("/backup", s.handleAdminBackup)
		guarded.POST("/restore", s.handleAdminRestore)
		guarded.POST("/backup/s3", s.handleAdminBackupToS3)
		guarded.GET("/config", s.handleAdminGetConfig)
		guarded.PUT("/config", s.handleAdminSetConfig)
		guarded.POST("/users/ban", s.handleAdminBanUser)
		guarded.POST("/users/credit", s.handleAdminCredit)
		guarded.POST("/users/vip", s.handleAdminAddVip)
		guarded.POST("/keys", s.handleAdminCreateKey)
		guarded.GET("/keys", s.handleAdminListKeys)
		guarded.GET("/logs", s.handleAdminLogs)
		guarded.POST("/ips/ban", s.handleAdminBanIP)
		guarded.POST("/ips/unban", s.handleAdminUnbanIP)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.EndpointAddrHTTP,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server listening", "addr", s.cfg.EndpointAddrHTTP)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
