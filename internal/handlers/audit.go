package handlers

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dietchse/basic-login-ap/internal/middleware"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const maxExportedEvents = 10000

func (h *SecurityHandler) Events(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	page, limit := utils.PageParams(c)
	events, total, err := h.Audit.ListForUser(c.UserContext(), user.ID, page, limit)
	if err != nil {
		return respondError(c, err, "list_events_failed", "failed listing security events")
	}
	return utils.Paginated(c, events, page, limit, total)
}

// ExportEvents downloads the caller's security events as CSV or JSON.
func (h *SecurityHandler) ExportEvents(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	format := strings.ToLower(strings.TrimSpace(c.Query("format", "csv")))
	if format != "csv" && format != "json" {
		return utils.Error(c, fiber.StatusBadRequest, "format must be csv or json")
	}

	logs, err := h.Audit.RecentForUser(c.UserContext(), user.ID, maxExportedEvents)
	if err != nil {
		return respondError(c, err, "export_events_failed", "failed loading security events")
	}

	if format == "json" {
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "security-events.json"))
		return utils.Success(c, fiber.StatusOK, logs)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "security-events.csv"))

	writer := csv.NewWriter(c.Response().BodyWriter())
	_ = writer.Write([]string{"Timestamp", "Action", "IP Address", "User Agent", "Details"})

	for _, log := range logs {
		detailStr := ""
		if log.Details != nil {
			keys := make([]string, 0, len(log.Details))
			for k := range log.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, log.Details[k]))
			}
			detailStr = strings.Join(parts, "; ")
		}

		_ = writer.Write([]string{
			log.CreatedAt.Format(time.RFC3339),
			log.Action,
			log.IPAddress,
			log.UserAgent,
			detailStr,
		})
	}

	writer.Flush()
	return nil
}
