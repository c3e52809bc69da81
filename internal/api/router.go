package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/payout-engine/docs"
	"github.com/d60-Lab/payout-engine/internal/api/handler"
	"github.com/d60-Lab/payout-engine/internal/api/middleware"
	"github.com/d60-Lab/payout-engine/internal/ledger"
	"github.com/d60-Lab/payout-engine/internal/service"
	"github.com/d60-Lab/payout-engine/pkg/auth"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Distributions service.DistributionService
	Queries       service.QueryService
	Codec         ledger.AddressCodec
	JWTSecret     string
	JWTIssuer     string
	// ServiceName 非空时启用 otelgin
	ServiceName string
}

// NewRouter 组装 gin 引擎
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	if err := RegisterValidators(deps.Codec); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestLogger())
	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	h := handler.NewHandler(deps.Distributions, deps.Queries)
	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	operator := middleware.JWTAuth(deps.JWTSecret, deps.JWTIssuer, auth.RoleOperator)

	v1 := r.Group("/api/v1")
	{
		dist := v1.Group("/distributions")
		dist.POST("", operator, h.CreateDistribution)
		dist.GET("/:id", h.GetDistribution)
		dist.GET("/:id/summary", h.GetDistributionSummary)
		dist.GET("/:id/payments", h.ListDistributionPayments)
		dist.POST("/:id/resume", operator, h.ResumeDistribution)

		v1.GET("/projects/:project_id/distributions", h.ListProjectDistributions)
		v1.GET("/holders/:address/payments", h.ListHolderPayments)
	}
	return r, nil
}
