package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/common/apiutil"
	"github.com/MoMannn/wanchain-example/common/auth"
	"github.com/MoMannn/wanchain-example/common/errors"
	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/gateway"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/server"
	"github.com/MoMannn/wanchain-example/internal/ledger"
	"github.com/MoMannn/wanchain-example/internal/mutation"
)

// AssetService is the set of ledger operations the HTTP surface forwards to
type AssetService interface {
	Deploy(ctx context.Context, recipe ledger.DeployRecipe) (*mutation.Mutation, error)
	Mint(ctx context.Context, ledgerID string, recipe ledger.AssetRecipe) (*mutation.Mutation, error)
	Transfer(ctx context.Context, ledgerID string, recipe ledger.TransferRecipe) (*mutation.Mutation, error)
	LedgerInfo(ctx context.Context, ledgerID string) (*ledger.Info, error)
	LedgerCapabilities(ctx context.Context, ledgerID string) ([]ledger.Capability, error)
	AssetInfo(ctx context.Context, ledgerID, assetID string) (*ledger.Asset, error)
	AssetOwner(ctx context.Context, ledgerID, assetID string) (string, error)
	Balance(ctx context.Context, ledgerID, owner string) (string, error)
	CreateOrder(ctx context.Context, order gateway.Order) (*gateway.Order, string, error)
	PerformOrder(ctx context.Context, order gateway.Order, claim string) (*mutation.Mutation, error)
	Mutation(ctx context.Context, id string) (*mutation.Record, error)
	Mutations(ctx context.Context, ledgerID string, limit int) ([]mutation.Record, error)
}

// Options tunes the router. The zero value serves every origin without auth or tracing.
type Options struct {
	AllowOrigins  []string
	JWTSecret     string
	JWTIssuer     string
	EnableTracing bool
	ServiceName   string
}

// Server represents the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	assets    AssetService
	health    *server.HealthChecker
	validator *apiutil.Validator
	opts      Options
}

// NewServer creates the API server. health may be nil.
func NewServer(logger *zap.Logger, assets AssetService, health *server.HealthChecker, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "assetgw"
	}

	s := &Server{
		logger:    logger,
		assets:    assets,
		health:    health,
		validator: apiutil.NewValidator(),
		opts:      opts,
	}
	// Registration only fails for empty tags or nil funcs.
	_ = s.validator.RegisterValidation("capability", isCapability)

	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(apiutil.RequestIDMiddleware())
	router.Use(apiutil.MetricsMiddleware())
	if opts.EnableTracing {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(cors.New(corsConfig(opts.AllowOrigins)))
	router.Use(apiutil.RFC7807ErrorMiddleware(problemFor))

	s.router = router
	s.registerRoutes()
	return s
}

// Router returns the internal Gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.health != nil {
		s.router.GET("/health", gin.WrapF(s.health.HealthHandler()))
		s.router.GET("/ready", gin.WrapF(s.health.ReadinessHandler()))
	}

	// Reads
	s.router.GET("/ledgerInfo", s.ledgerInfo)
	s.router.GET("/ledgerCapabilities", s.ledgerCapabilities)
	s.router.GET("/assetInfo", s.assetInfo)
	s.router.GET("/assetOwner", s.assetOwner)
	s.router.GET("/balance", s.balance)
	s.router.GET("/mutation", s.getMutation)
	s.router.GET("/mutations", s.listMutations)

	// Mutations
	writes := s.router.Group("/")
	if s.opts.JWTSecret != "" {
		writes.Use(auth.RequireBearer(s.opts.JWTSecret, s.opts.JWTIssuer))
	}
	{
		writes.POST("/deploy", s.deploy)
		writes.POST("/mint", s.mint)
		writes.POST("/transfer", s.transfer)
		writes.POST("/atomic-order", s.createOrder)
		writes.POST("/atomic-order/perform", s.performOrder)
	}

	s.router.NoRoute(func(c *gin.Context) {
		apiutil.RFC7807NotFoundResponse(c, "The requested resource was not found")
	})
	s.router.NoMethod(func(c *gin.Context) {
		apiutil.RFC7807MethodNotAllowedResponse(c, "The requested method is not allowed for this resource")
	})
}

// bind reads req from the query string (GET) or the JSON / form body and validates it.
// On failure the error is attached to c and false is returned.
func (s *Server) bind(c *gin.Context, req interface{}) bool {
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(req)
	} else {
		err = c.ShouldBind(req)
	}
	if err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	if err := s.validator.Validate(req); err != nil {
		_ = c.Error(err)
		return false
	}
	return true
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", apiutil.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func isCapability(fl validator.FieldLevel) bool {
	return ledger.Capability(fl.Field().Int()).Valid()
}

// problemFor maps service errors to problem details
func problemFor(err error, instance string) *errors.ProblemDetails {
	var nodeErr *chain.NodeError
	switch {
	case stderrors.Is(err, ledger.ErrInvalidAddress),
		stderrors.Is(err, ledger.ErrInvalidAssetID),
		stderrors.Is(err, ledger.ErrInvalidHash),
		stderrors.Is(err, ledger.ErrUnknownCapability),
		stderrors.Is(err, gateway.ErrInvalidOrder),
		stderrors.Is(err, gateway.ErrInvalidClaim):
		return errors.NewValidationError(err.Error(), instance)
	case stderrors.Is(err, gateway.ErrNotMaker),
		stderrors.Is(err, gateway.ErrNotTaker):
		return errors.NewForbiddenError(err.Error(), instance)
	case stderrors.Is(err, gateway.ErrExpired):
		return errors.NewConflictError(err.Error(), instance)
	case stderrors.Is(err, mutation.ErrNotFound):
		return errors.NewNotFoundError(err.Error(), instance)
	case stderrors.Is(err, bind.ErrNoCode):
		return errors.NewNotFoundError("no contract is deployed at the requested ledger", instance)
	case stderrors.Is(err, ledger.ErrBytecodeMissing),
		stderrors.Is(err, gateway.ErrNotDeployed),
		stderrors.Is(err, chain.ErrNoSigningKey):
		return errors.NewServiceUnavailableError(err.Error(), instance)
	case stderrors.As(err, &nodeErr):
		return errors.NewNodeError(nodeErr.Error(), instance)
	}
	return nil
}
