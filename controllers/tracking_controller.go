package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"databender/utils"
	"databender/worker"
)

type TrackingController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Leads  *utils.LeadService
	Tasks  *worker.TaskQueue
}

func NewTrackingController(db *gorm.DB, logger *log.Logger, leads *utils.LeadService, tasks *worker.TaskQueue) *TrackingController {
	return &TrackingController{DB: db, Logger: logger, Leads: leads, Tasks: tasks}
}

// HandleOpenTracking serves the 1x1 pixel. The image is always returned
// with no-cache headers, valid token or not; recording the open happens on
// the task queue so the response never waits on it.
func (tc *TrackingController) HandleOpenTracking(c *fiber.Ctx) error {
	token := c.Params("token")
	userAgent := c.Get("User-Agent")
	ip := c.IP()

	if data := utils.DecodeTrackingID(token); data != nil {
		utils.TrackingOpens.Inc()
		tc.Tasks.Submit(func() {
			if err := tc.Leads.RegisterOpen(data, userAgent, ip); err != nil {
				tc.Logger.Printf("open event for lead %d not recorded: %v", data.LeadID, err)
			}
		})
	} else {
		utils.TrackingDecodeFailures.Inc()
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Set("Pragma", "no-cache")
	c.Set("Expires", "0")
	return c.Status(fiber.StatusOK).Send(utils.TransparentGIF)
}

// HandleClickTracking records the click and redirects to the embedded
// destination. Malformed tokens and missing destinations redirect to the
// site root instead of erroring.
func (tc *TrackingController) HandleClickTracking(c *fiber.Ctx) error {
	token := c.Params("token")
	userAgent := c.Get("User-Agent")
	ip := c.IP()

	data := utils.DecodeTrackingID(token)
	if data == nil {
		utils.TrackingDecodeFailures.Inc()
		return c.Redirect("/", fiber.StatusFound)
	}

	utils.TrackingClicks.Inc()
	tc.Tasks.Submit(func() {
		if err := tc.Leads.RegisterClick(data, userAgent, ip); err != nil {
			tc.Logger.Printf("click event for lead %d not recorded: %v", data.LeadID, err)
		}
	})

	if data.DestinationURL == "" {
		return c.Redirect("/", fiber.StatusFound)
	}
	return c.Redirect(data.DestinationURL, fiber.StatusFound)
}
