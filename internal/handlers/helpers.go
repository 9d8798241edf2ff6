package handlers

import (
	"strings"

	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func clientInfo(c *fiber.Ctx) services.ClientInfo {
	return services.ClientInfo{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IPAddress: c.IP(),
	}
}

// firstNonEmpty returns the first trimmed value that is not blank. Request
// bodies accept a few aliases for the same field.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
