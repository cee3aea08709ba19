package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestRegisterValidatesRequest(t *testing.T) {
	// Every case fails validation before the user store is touched.
	handler := NewAuthHandler(nil, "test-secret")
	app := fiber.New()
	app.Post("/api/auth/register", handler.Register)

	tests := []struct {
		name    string
		payload string
	}{
		{"malformed email", `{"email":"not-an-email","password":"longenough","role":"member","fullName":"A"}`},
		{"short password", `{"email":"a@b.com","password":"short","role":"member","fullName":"A"}`},
		{"unknown role", `{"email":"a@b.com","password":"longenough","role":"admin","fullName":"A"}`},
		{"blank full name", `{"email":"a@b.com","password":"longenough","role":"trainer","fullName":"  "}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tc.payload))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestMeRequiresActorContext(t *testing.T) {
	handler := NewAuthHandler(nil, "test-secret")
	app := fiber.New()
	app.Get("/api/auth/me", handler.Me)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
