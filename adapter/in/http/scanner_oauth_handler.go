package http

import (
	"errors"

	"scanner_server/core/port/in"
	"scanner_server/pkg/apperr"
	"scanner_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// OAuthHandler drives the consent redirect and its callback. A successful
// callback persists the token and runs a scan in the same request.
type OAuthHandler struct {
	auth  in.AuthService
	scans in.ScanService
	log   zerolog.Logger
}

func NewOAuthHandler(auth in.AuthService, scans in.ScanService, log zerolog.Logger) *OAuthHandler {
	return &OAuthHandler{
		auth:  auth,
		scans: scans,
		log:   log.With().Str("component", "oauth_handler").Logger(),
	}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	app.Get("/auth", h.Connect)
	app.Get("/oauth2callback", h.Callback)
}

// Connect redirects to the Google consent screen.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	url, _, err := h.auth.AuthURL()
	if err != nil {
		return response.FromError(c, apperr.InternalWithError(err))
	}
	return c.Redirect(url, fiber.StatusFound)
}

// Callback verifies state, exchanges the code and scans the mailbox.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		h.log.Warn().Str("reason", reason).Msg("consent denied")
		return response.FromError(c, apperr.OAuthFailed("google", errors.New(reason)))
	}

	if err := h.auth.VerifyState(c.Query("state")); err != nil {
		h.log.Warn().Err(err).Msg("rejected oauth state")
		return response.FromError(c, apperr.InvalidState(err))
	}

	code := c.Query("code")
	if code == "" {
		return response.FromError(c, apperr.MissingField("code"))
	}

	ctx := c.UserContext()
	if _, err := h.auth.Exchange(ctx, code); err != nil {
		h.log.Error().Err(err).Msg("token exchange failed")
		return response.FromError(c, apperr.OAuthFailed("google", err))
	}

	result, err := h.scans.Scan(ctx)
	if err != nil {
		return response.FromError(c, withScanID(toAppError(err), result))
	}
	return response.OK(c, result)
}
