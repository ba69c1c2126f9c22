package controller

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"databender/config"
	"databender/utils"
	"databender/worker"
)

func newTrackingTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get DB instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := config.MigrateDB(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	svcLogger := logrus.New()
	svcLogger.SetOutput(io.Discard)
	leads := utils.NewLeadService(db, svcLogger)
	tasks := worker.NewTaskQueue(1, 16)
	t.Cleanup(func() { tasks.Shutdown(context.Background()) })

	tc := NewTrackingController(db, log.New(io.Discard, "", 0), leads, tasks)

	app := fiber.New()
	app.Get("/track/open/:token", tc.HandleOpenTracking)
	app.Get("/track/click/:token", tc.HandleClickTracking)
	return app, db
}

func TestHandleOpenTrackingServesPixel(t *testing.T) {
	app, _ := newTrackingTestApp(t)

	token := utils.EncodeTrackingID(utils.TrackingData{LeadID: 1, EmailDay: 2, SequenceType: "assessment"})
	resp, err := app.Test(httptest.NewRequest("GET", "/track/open/"+token, nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content type = %q, want image/gif", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store, no-cache, must-revalidate" {
		t.Errorf("cache control = %q", cc)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, utils.TransparentGIF) {
		t.Errorf("body is not the tracking pixel (%d bytes)", len(body))
	}
}

func TestHandleOpenTrackingGarbageToken(t *testing.T) {
	app, _ := newTrackingTestApp(t)

	// Bots probe these endpoints; garbage still gets the pixel
	resp, err := app.Test(httptest.NewRequest("GET", "/track/open/not-a-real-token", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200 even for garbage", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content type = %q, want image/gif", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, utils.TransparentGIF) {
		t.Error("garbage token did not get the pixel")
	}
}

func TestHandleClickTrackingRedirects(t *testing.T) {
	app, _ := newTrackingTestApp(t)

	token := utils.EncodeTrackingID(utils.TrackingData{
		LeadID:         7,
		EmailDay:       2,
		SequenceType:   "assessment",
		DestinationURL: "https://databender.co/case-studies",
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/track/click/"+token, nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://databender.co/case-studies" {
		t.Errorf("location = %q", loc)
	}
}

func TestHandleClickTrackingBadToken(t *testing.T) {
	app, _ := newTrackingTestApp(t)

	for _, token := range []string{"garbage", utils.EncodeTrackingID(utils.TrackingData{LeadID: 7, SequenceType: "assessment"})} {
		resp, err := app.Test(httptest.NewRequest("GET", "/track/click/"+token, nil))
		if err != nil {
			t.Fatalf("request error: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != fiber.StatusFound {
			t.Errorf("status = %d, want 302", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/" {
			t.Errorf("location = %q, want / for token %q", loc, token)
		}
	}
}
