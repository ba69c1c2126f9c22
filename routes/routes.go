package routes

import (
	"log"
	"os"

	controller "databender/controllers"
	"databender/middleware"
	"databender/utils"
	"databender/worker"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Controllers bundles the wired controllers so main can hand worker
// callbacks (sequence batch results) back into the HTTP layer.
type Controllers struct {
	Events      *controller.EventController
	Leads       *controller.LeadController
	Attribution *controller.AttributionController
	Tracking    *controller.TrackingController
	Sequences   *controller.SequenceController
}

// SetupRoutes wires all public and admin endpoints and returns the
// controller set for the caller to connect to background workers.
func SetupRoutes(app *fiber.App, db *gorm.DB, svcLogger *logrus.Logger, tasks *worker.TaskQueue, processor *utils.SequenceProcessor, tracker *utils.SessionTracker) *Controllers {
	engine := utils.NewAttributionEngine(db, svcLogger)
	leads := utils.NewLeadService(db, svcLogger)
	companies := utils.NewCompanyLookup(svcLogger)

	eventController := controller.NewEventController(db, log.New(os.Stdout, "EVENT: ", log.LstdFlags), engine, tracker, tasks)
	leadController := controller.NewLeadController(db, log.New(os.Stdout, "LEAD: ", log.LstdFlags), leads, processor, companies, tasks)
	attributionController := controller.NewAttributionController(db, log.New(os.Stdout, "ATTRIBUTION: ", log.LstdFlags), engine)
	trackingController := controller.NewTrackingController(db, log.New(os.Stdout, "TRACKING: ", log.LstdFlags), leads, tasks)
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags), leads, processor)

	// Health and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	setupPublicRoutes(app, eventController, leadController, trackingController, sequenceController)
	setupAuthRoutes(app)
	setupAPIRoutes(app, leadController, attributionController, sequenceController)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	return &Controllers{
		Events:      eventController,
		Leads:       leadController,
		Attribution: attributionController,
		Tracking:    trackingController,
		Sequences:   sequenceController,
	}
}

// setupPublicRoutes registers the endpoints the marketing site calls
// without authentication: event capture, lead forms, email tracking
// redirects, unsubscribe and the ESP event webhook.
func setupPublicRoutes(app *fiber.App, events *controller.EventController, leads *controller.LeadController, tracking *controller.TrackingController, sequences *controller.SequenceController) {
	// Capture endpoints are rate limited per IP to absorb bot traffic.
	capture := app.Group("", middleware.CaptureRateLimiter())
	capture.Post("/track/event", events.TrackEvent)
	capture.Post("/track/source", events.TrackSelfReportedSource)
	capture.Post("/leads", leads.CaptureLead)

	// Tracking redirects must stay fast and never error toward the client.
	app.Get("/track/open/:token", tracking.HandleOpenTracking)
	app.Get("/track/click/:token", tracking.HandleClickTracking)

	app.Get("/unsubscribe/:token", sequences.Unsubscribe)
	app.Post("/webhooks/email-events", sequences.HandleEmailEvents)
}

func setupAuthRoutes(app *fiber.App) {
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Get("/me", controller.GetCurrentUser)
}

// setupAPIRoutes registers the authenticated admin API.
func setupAPIRoutes(app *fiber.App, leadController *controller.LeadController, attributionController *controller.AttributionController, sequenceController *controller.SequenceController) {
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Lead management
	lead := api.Group("/leads")
	lead.Get("/", leadController.GetLeads)
	lead.Get("/stats", leadController.GetLeadStats)
	lead.Get("/export", leadController.ExportLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Put("/:id", leadController.UpdateLead)
	lead.Post("/:id/notes", leadController.AddNote)
	lead.Post("/:id/contacts", leadController.RecordContact)

	// Attribution reporting
	attribution := api.Group("/attribution")
	attribution.Get("/channels", attributionController.GetChannelSummary)
	attribution.Get("/visitors/:visitorId", attributionController.GetVisitorAttribution)
	attribution.Post("/opportunities", attributionController.MarkOpportunity)

	// Sequence management
	sequence := api.Group("/sequences")
	sequence.Post("/enroll", sequenceController.Enroll)
	sequence.Post("/:id/pause", sequenceController.Pause)
	sequence.Post("/:id/resume", sequenceController.Resume)
	sequence.Post("/process", sequenceController.ProcessSequences)

	// WebSocket route for sequence batch progress
	app.Get("/api/v1/sequences/progress", websocket.New(func(c *websocket.Conn) {
		sequenceController.HandleProgressWS(c)
	}))

	log.Println("API routes initialized successfully")
}
