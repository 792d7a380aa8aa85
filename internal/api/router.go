package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"face-attendance-backend/internal/mw"
)

// RouterOptions holds the transport settings.
type RouterOptions struct {
	RequestIPHeader string
	RateLimitPerSec float64
	RateLimitBurst  int
	AllowedOrigins  []string
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.Default()

	if opts.RequestIPHeader != "" {
		r.TrustedPlatform = opts.RequestIPHeader
	}

	if len(opts.AllowedOrigins) > 0 {
		corsCfg := cors.Config{
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		if slices.Contains(opts.AllowedOrigins, "*") {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
		} else {
			corsCfg.AllowOrigins = opts.AllowedOrigins
		}
		r.Use(cors.New(corsCfg))
	}

	limiter := mw.NewIPRateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst, 10*time.Minute)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Face Attendance API"})
	})

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter))
	{
		api.POST("/mark-attendance", h.MarkAttendance)

		caching := func(c *gin.Context) { c.Next() }
		if h.cache != nil {
			caching = h.cache.Handler()
		}
		api.GET("/attendance", caching, h.GetAttendance)

		api.GET("/gallery", h.GetGallery)
		api.POST("/gallery/refresh", h.RefreshGallery)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
