package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/meditrack/coldchain/internal/handler"
	"github.com/meditrack/coldchain/internal/infra"
	"github.com/meditrack/coldchain/internal/infra/auth"
	"go.uber.org/zap"
)

type APIServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка RS256 токенов на защищенном периметре
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler      *handler.AuthHandler      // /auth/token
	shipmentHandler  *handler.ShipmentHandler  // /v1/shipments
	insuranceHandler *handler.InsuranceHandler // /v1/policies
	treasuryHandler  *handler.TreasuryHandler  // /v1/treasury
	accessHandler    *handler.AccessHandler    // /v1/roles, /v1/pause
	auditHandler     *handler.AuditHandler     // /v1/audit
}

// NewAPIServer собирает HTTP-поверхность платформы со всеми зависимостями
func NewAPIServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	shipmentH *handler.ShipmentHandler,
	insuranceH *handler.InsuranceHandler,
	treasuryH *handler.TreasuryHandler,
	accessH *handler.AccessHandler,
	auditH *handler.AuditHandler,
) *APIServer {
	s := &APIServer{
		router:           chi.NewRouter(),
		logger:           logger.Named("coldchain-api"),
		cfg:              cfg,
		authValidator:    validator,
		authHandler:      authH,
		shipmentHandler:  shipmentH,
		insuranceHandler: insuranceH,
		treasuryHandler:  treasuryH,
		accessHandler:    accessH,
		auditHandler:     auditH,
	}

	s.routes()
	return s
}

func (s *APIServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (открыты без токена) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (требует RS256 токен) ---
	// Токен удостоверяет личность; роль каждый компонент проверяет сам
	// по живой таблице доступа.
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Реестр отправлений и телеметрия
		r.Route("/v1/shipments", func(r chi.Router) {
			r.Post("/", s.shipmentHandler.Register) // Регистрация (supplier)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.shipmentHandler.Get)                     // Отправление + показания
				r.Get("/breached", s.shipmentHandler.GetBreached)     // Только флаг нарушения
				r.Post("/readings", s.shipmentHandler.LogReading)     // Показание датчика (oracle)
				r.Post("/delivered", s.shipmentHandler.MarkDelivered) // Закрытие (получатель)
			})
		})

		// Дефолтный температурный коридор для новых отправлений
		r.Put("/v1/config/thresholds", s.shipmentHandler.UpdateThresholds)

		// Страховые полисы и расчеты
		r.Route("/v1/policies", func(r chi.Router) {
			r.Post("/", s.insuranceHandler.Create) // Выпуск полиса (admin)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.insuranceHandler.Get)
				r.Post("/premium", s.insuranceHandler.PayPremium)   // Премия (держатель)
				r.Post("/claim", s.insuranceHandler.FileClaim)      // Заявка (держатель)
				r.Post("/approve", s.insuranceHandler.ApproveClaim) // Решение (admin)
				r.Post("/decline", s.insuranceHandler.DeclineClaim)
				r.Post("/payout", s.insuranceHandler.Payout) // Расчет и перевод
			})
		})

		// Резервный фонд
		r.Route("/v1/treasury", func(r chi.Router) {
			r.Post("/deposit", s.treasuryHandler.Deposit)
			r.Get("/balance", s.treasuryHandler.Balance)
		})

		// Управление доступом и kill-switch
		r.Post("/v1/roles/grant", s.accessHandler.Grant)
		r.Post("/v1/roles/revoke", s.accessHandler.Revoke)
		r.Post("/v1/pause", s.accessHandler.Pause)
		r.Post("/v1/unpause", s.accessHandler.Unpause)

		// Журнал аудита
		r.Get("/v1/audit", s.auditHandler.GetLogs)
	})
}

// ServeHTTP позволяет использовать APIServer как стандартный http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
