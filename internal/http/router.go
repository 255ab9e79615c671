package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/nostradamus/internal/observability"
)

// NewRouter wires every route. Rate limiting and the request timeout apply only
// to routes that can reach an upstream; /health and /metrics stay cheap.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	api := router.PathPrefix("/api/weather").Subrouter()
	api.Use(RateLimitMiddleware(limiter, h.tracker))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/history", h.GetHistory).Methods("GET")
	api.HandleFunc("/forecast", h.GetForecast).Methods("GET")
	api.HandleFunc("/predict", h.GetPrediction).Methods("GET")

	dash := router.PathPrefix("/dashboards").Subrouter()
	dash.Use(RateLimitMiddleware(limiter, h.tracker))
	dash.Use(TimeoutMiddleware(requestTimeout))
	dash.HandleFunc("", h.CreateDashboard).Methods("POST")
	dash.HandleFunc("/{id}", h.GetDashboard).Methods("GET")
	dash.HandleFunc("/{id}", h.DeleteDashboard).Methods("DELETE")
	dash.HandleFunc("/{id}/location", h.PutLocation).Methods("PUT")
	dash.HandleFunc("/{id}/refresh", h.RefreshDashboard).Methods("POST")
	dash.HandleFunc("/{id}/predict", h.PredictDashboard).Methods("POST")
	dash.HandleFunc("/{id}/carousel", h.PageCarousel).Methods("POST")
	dash.HandleFunc("/{id}/carousel/today", h.CarouselToday).Methods("POST")
	dash.HandleFunc("/{id}/select", h.SelectDay).Methods("POST")
	return router
}
