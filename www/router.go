package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"robofleet/engine"
)

type Handlers struct {
	engine     *engine.Engine
	gateway    *Gateway
	apiKeyHash string
	log        *zap.Logger
}

// NewRouter builds the HTTP API, the realtime endpoints and /metrics. The
// returned func closes every open realtime connection.
func NewRouter(eng *engine.Engine, gatherer prometheus.Gatherer, logger *zap.Logger) (http.Handler, func()) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	gw := NewGateway(eng, logger)

	h := &Handlers{
		engine:     eng,
		gateway:    gw,
		apiKeyHash: eng.AppConfig().Web.APIKeyHash,
		log:        logger.Named("www"),
	}

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Realtime
	r.Route("/ws", func(r chi.Router) {
		r.Get("/inspection/{scheduleId}", gw.handleInspection)
		r.Get("/emergency-stop", gw.handleEmergencyStop)
		r.Get("/robot_message", gw.handleRobotMessageGroup)
		r.Get("/robot_message/{roboId}", gw.handleRobotMessage)
		r.Get("/robot_message/{roboId}/profile/{profileId}", gw.handleRobotProfile)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)

		// Reads
		r.Get("/schedule", h.apiListSchedules)
		r.Get("/schedule/{id}/inspections", h.apiListInspections)
		r.Get("/inspection/{id}", h.apiGetInspection)
		r.Get("/robots/{id}", h.apiGetRobot)
		r.Get("/robots/{id}/location", h.apiRobotLocation)
		r.Get("/robots/{id}/emergency", h.apiGetEmergency)
		r.Get("/robots/{id}/speak_start", h.apiGetSpeakStart)
		r.Get("/robots/{id}/emergency-stop", h.apiGetEmergencyStop)
		r.Get("/profiles/{id}/calibration", h.apiGetCalibration)
		r.Post("/schedule/filter-by-date-range", h.apiFilterSchedulesByDate)

		// Trusted relay, reachable without a key.
		r.Post("/robots/event", h.apiRobotEvent)

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey)
			r.Post("/robots", h.apiCreateRobot)
			r.Delete("/robots/{id}", h.apiDeactivateRobot)
			r.Put("/robots/{id}/activate", h.apiActivateRobot)
			r.Post("/robots/{id}/schedule", h.apiCreateSchedule)
			r.Post("/robots/{id}/schedule/create-immediately", h.apiCreateScheduleImmediately)
			r.Put("/schedule/{id}", h.apiUpdateScheduleImmediately)
			r.Delete("/schedule/{id}", h.apiCancelSchedule)
			r.Post("/schedule/{id}/inspections", h.apiCreateInspection)
			r.Patch("/inspection/{id}/verify", h.apiVerifyInspection)
			r.Post("/robots/{id}/emergency", h.apiSetEmergency)
			r.Post("/robots/{id}/speak_start", h.apiSetSpeakStart)
			r.Post("/robots/{id}/emergency-stop", h.apiSetEmergencyStop)
			r.Post("/robots/{id}/profiles", h.apiCreateProfile)
			r.Post("/profiles/{id}/calibration-status", h.apiSetCalibrationStatus)
			r.Post("/profiles/{id}/hands/{hand}/activate", h.apiActivateHand)
			r.Post("/profiles/{id}/hands/{hand}/deactivate", h.apiDeactivateHand)
			r.Post("/profiles/{id}/hands/{hand}/points/{point}", h.apiSetPoint)
			r.Delete("/profiles/{id}/hands/{hand}/points/{point}", h.apiClearPoint)
		})
	})

	return r, gw.Close
}
