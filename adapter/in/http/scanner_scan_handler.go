package http

import (
	"scanner_server/core/domain"
	"scanner_server/core/port/in"
	"scanner_server/pkg/apperr"
	"scanner_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type ScanHandler struct {
	scans in.ScanService
}

func NewScanHandler(scans in.ScanService) *ScanHandler {
	return &ScanHandler{scans: scans}
}

func (h *ScanHandler) Register(app fiber.Router) {
	app.Post("/scan", h.Scan)
}

// Scan runs a scan with the stored token. ?source= picks gmail or mbox.
func (h *ScanHandler) Scan(c *fiber.Ctx) error {
	var (
		result *domain.ScanResult
		err    error
	)
	if source := c.Query("source"); source != "" {
		result, err = h.scans.ScanSource(c.UserContext(), source)
	} else {
		result, err = h.scans.Scan(c.UserContext())
	}
	if err != nil {
		return response.FromError(c, withScanID(toAppError(err), result))
	}
	return response.OK(c, result)
}

func withScanID(ae *apperr.AppError, result *domain.ScanResult) *apperr.AppError {
	if result != nil {
		ae.WithDetail("scan_id", result.ID.String())
	}
	return ae
}
