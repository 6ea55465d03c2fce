// Package web serves the read-only status API of go-pugbin
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"github.com/go-while/go-pugbin/internal/config"
	"github.com/go-while/go-pugbin/internal/models"
	"github.com/go-while/go-pugbin/internal/nntp"
)

// Store is the database surface the API reads.
type Store interface {
	ListGroups(ctx context.Context, activeOnly bool) ([]*models.Group, error)
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	GroupPartStats(ctx context.Context, name string) (*models.GroupStats, error)
}

// CounterSource exposes the assembler counters.
type CounterSource interface {
	Snapshot() map[string]map[string]int64
}

// PoolSource exposes NNTP connection pool statistics.
type PoolSource interface {
	Stats() nntp.PoolStats
}

type WebServer struct {
	Store     Store
	Counters  CounterSource
	Pool      PoolSource // optional
	Router    *gin.Engine
	Config    *config.WebConfig
	StartTime time.Time
}

// NewServer creates the status API server.
func NewServer(store Store, counters CounterSource, pool PoolSource, webconfig *config.WebConfig) *WebServer {
	if webconfig.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if webconfig.Debug {
		router.Use(ApacheLogFormat())
	}
	router.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	secureConfig := secure.Config{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'",
		ReferrerPolicy:        "no-referrer",
		IsDevelopment:         webconfig.Debug,
	}
	// only when TLS terminates here, not behind a reverse proxy
	if webconfig.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}
	router.Use(secure.New(secureConfig))

	s := &WebServer{
		Store:     store,
		Counters:  counters,
		Pool:      pool,
		Router:    router,
		Config:    webconfig,
		StartTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *WebServer) setupRoutes() {
	s.Router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	api := s.Router.Group("/api/v1")
	{
		api.GET("/groups", s.listGroups)
		api.GET("/groups/:group", s.getGroup)
		api.GET("/stats", s.getStats)
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *WebServer) Start(ctx context.Context) error {
	if s.Config.SSL && (s.Config.CertFile == "" || s.Config.KeyFile == "") {
		return errors.New("SSL enabled but cert_file or key_file not specified in config")
	}
	srv := &http.Server{
		Addr:              s.Config.ListenAddr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.StartTime = time.Now()

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.Config.SSL {
			log.Printf("[WEB] Starting HTTPS server on %s", srv.Addr)
			err = srv.ListenAndServeTLS(s.Config.CertFile, s.Config.KeyFile)
		} else {
			log.Printf("[WEB] Starting HTTP server on %s", srv.Addr)
			err = srv.ListenAndServe()
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Printf("[WEB] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// ApacheLogFormat logs requests in Apache combined log format.
func ApacheLogFormat() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d "%s" "%s"`+"\n",
			param.ClientIP,
			param.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.BodySize,
			param.Request.Referer(),
			param.Request.UserAgent(),
		)
	})
}
