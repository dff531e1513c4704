package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devrev/pairdb/placement/internal/health"
	"github.com/devrev/pairdb/placement/internal/middleware"
)

// NewRouter assembles the plan API. middlewares wrap every route, outermost first.
func NewRouter(
	plans *PlanHandler,
	topology *TopologyHandler,
	healthChecker *health.HealthChecker,
	errors *ErrorWriter,
	middlewares ...func(http.Handler) http.Handler,
) *mux.Router {
	router := mux.NewRouter()
	chain := middleware.Chain(middlewares...)
	router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	router.HandleFunc("/health/live", healthChecker.LivenessHandler).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthChecker.ReadinessHandler).Methods(http.MethodGet)

	plans.RegisterRoutes(router)
	topology.RegisterRoutes(router)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteErrorResponse(w, r, http.StatusNotFound, "NOT_FOUND", "endpoint not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return router
}
