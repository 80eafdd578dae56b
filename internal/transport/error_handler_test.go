package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.DebugLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "duplicate request_id")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("dial tcp: connection refused")
	})

	testCases := []struct {
		path        string
		wantStatus  int
		wantMessage string
		wantLevel   zapcore.Level
	}{
		{path: "/conflict", wantStatus: fiber.StatusConflict, wantMessage: "duplicate request_id", wantLevel: zapcore.DebugLevel},
		{path: "/boom", wantStatus: fiber.StatusInternalServerError, wantMessage: "internal server error", wantLevel: zapcore.ErrorLevel},
	}

	for _, tc := range testCases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		if err != nil {
			t.Fatalf("app.Test(%s) error = %v", tc.path, err)
		}
		if resp.StatusCode != tc.wantStatus {
			t.Fatalf("%s status = %d, want %d", tc.path, resp.StatusCode, tc.wantStatus)
		}

		raw, _ := io.ReadAll(resp.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("json unmarshal error = %v", err)
		}
		if body["success"] != false {
			t.Fatalf("%s success = %v, want false", tc.path, body["success"])
		}
		if body["message"] != tc.wantMessage {
			t.Fatalf("%s message = %v, want %q", tc.path, body["message"], tc.wantMessage)
		}
	}

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	for i, tc := range testCases {
		if entries[i].Level != tc.wantLevel {
			t.Fatalf("%s log level = %s, want %s", tc.path, entries[i].Level, tc.wantLevel)
		}
	}
}
