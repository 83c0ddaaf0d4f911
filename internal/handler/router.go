package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, log *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		raffles := api.Group("/raffles")
		{
			raffles.GET("/:id/board", h.GetBoard)
			raffles.POST("/:id/tickets", h.GenerateTickets)
		}

		reservations := api.Group("/reservations")
		{
			reservations.POST("", h.Reserve)
			reservations.POST("/:ticket_id/validate", h.ValidateReservation)
			reservations.DELETE("/:ticket_id", h.CancelReservation)
		}

		api.POST("/bookings", h.Book)

		sales := api.Group("/sales")
		{
			sales.POST("/:id/installments", h.RecordInstallment)
			sales.GET("/:id/summary", h.GetSummary)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
