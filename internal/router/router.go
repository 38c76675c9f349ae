package router

import (
	"net/http"

	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/handler"
	mw "github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/comanda-pos/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Services are the core services the HTTP surface exposes.
type Services struct {
	Orders     *service.OrderService
	Kitchen    *service.KitchenService
	Settlement *service.SettlementService
	Cash       *service.CashService
	Inventory  *service.InventoryService
}

// NewServices builds every service on the same pool, store factory and
// notifier.
func NewServices(pool service.TxBeginner, notifier service.Notifier, log *zap.Logger) Services {
	newStore := func(db database.DBTX) service.Store {
		return database.New(db)
	}
	return Services{
		Orders:     service.NewOrderService(pool, newStore, notifier, log.Named("orders")),
		Kitchen:    service.NewKitchenService(pool, newStore, notifier, log.Named("kitchen")),
		Settlement: service.NewSettlementService(pool, newStore, notifier, log.Named("settlement")),
		Cash:       service.NewCashService(pool, newStore, log.Named("cash")),
		Inventory:  service.NewInventoryService(pool, newStore, log.Named("inventory")),
	}
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, log *zap.Logger, users handler.AuthStore, svc Services, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handler.NewAuthHandler(users, cfg.JWTSecret, cfg.TokenTTL, log)
	authHandler.RegisterRoutes(r)

	// Kitchen displays authenticate with the token query parameter.
	r.Get("/ws/kds/{station}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		authHandler.RegisterProtectedRoutes(r)

		salon := handler.NewSalonHandler(svc.Orders, log)
		r.Route("/salon", salon.RegisterRoutes)

		kds := handler.NewKDSHandler(svc.Kitchen, log)
		r.Route("/kds", kds.RegisterRoutes)

		cashier := handler.NewCashierHandler(svc.Settlement, svc.Cash, log)
		r.Route("/cashier", cashier.RegisterRoutes)

		inventory := handler.NewInventoryHandler(svc.Inventory, log)
		r.Route("/inventory", inventory.RegisterRoutes)
	})

	log.Debug("router initialized")
	return r
}
