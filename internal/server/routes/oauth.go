package routes

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/internal/session"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CodeTTL bounds the time between authorize and token exchange.
const CodeTTL = 10 * time.Minute

func oauthError(c echo.Context, status int, code, description string) error {
	return c.JSON(status, map[string]string{"error": code, "error_description": description})
}

// AuthorizeHandler issues an authorization code and redirects back to the
// client. The code carries no credentials; they are presented at the token
// exchange.
func AuthorizeHandler(c echo.Context) error {
	type authorizeParams struct {
		ClientID    string `query:"client_id"`
		RedirectURI string `query:"redirect_uri" validate:"required"`
		State       string `query:"state"`
	}

	params := new(authorizeParams)
	if err := c.Bind(params); err != nil {
		return oauthError(c, http.StatusBadRequest, "invalid_request", "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return oauthError(c, http.StatusBadRequest, "invalid_request", "redirect_uri is required")
	}

	target, err := url.Parse(params.RedirectURI)
	if err != nil || !target.IsAbs() {
		return oauthError(c, http.StatusBadRequest, "invalid_request", "redirect_uri must be an absolute URL")
	}

	app := c.(*middleware.AppContext).App
	code := util.NewID()
	err = app.Sessions.Put(c.Request().Context(), session.CodeKey(code), session.Session{
		ClientID:  params.ClientID,
		CreatedAt: time.Now(),
	}, CodeTTL)
	if err != nil {
		logger.Error("[OAuth] Failed to store code", "err", err)
		return oauthError(c, http.StatusInternalServerError, "server_error", "Failed to issue code")
	}

	q := target.Query()
	q.Set("code", code)
	if params.State != "" {
		q.Set("state", params.State)
	}
	target.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, target.String())
}

// TokenHandler exchanges a code for an access token bound to the client's
// backend credentials.
func TokenHandler(c echo.Context) error {
	type tokenParams struct {
		GrantType    string `form:"grant_type" validate:"required"`
		Code         string `form:"code" validate:"required"`
		ClientID     string `form:"client_id" validate:"required"`
		ClientSecret string `form:"client_secret" validate:"required"`
	}

	params := new(tokenParams)
	if err := c.Bind(params); err != nil {
		return oauthError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if err := c.Validate(params); err != nil {
		return oauthError(c, http.StatusBadRequest, "invalid_request", "grant_type, code, client_id and client_secret are required")
	}
	if params.GrantType != "authorization_code" {
		return oauthError(c, http.StatusBadRequest, "unsupported_grant_type", "Only authorization_code is supported")
	}

	if !util.IsNanoid(params.Code) {
		return oauthError(c, http.StatusBadRequest, "invalid_grant", "Unknown or expired code")
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	issued, err := app.Sessions.Take(ctx, session.CodeKey(params.Code))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return oauthError(c, http.StatusBadRequest, "invalid_grant", "Unknown or expired code")
		}
		logger.Error("[OAuth] Failed to read code", "err", err)
		return oauthError(c, http.StatusInternalServerError, "server_error", "Failed to exchange code")
	}
	if issued.ClientID != "" && issued.ClientID != params.ClientID {
		return oauthError(c, http.StatusBadRequest, "invalid_grant", "Code was issued to another client")
	}

	token := util.NewID()
	err = app.Sessions.Put(ctx, session.TokenKey(token), session.Session{
		KeyID:     params.ClientID,
		KeySecret: params.ClientSecret,
		ClientID:  params.ClientID,
		CreatedAt: time.Now(),
	}, app.SessionTTL)
	if err != nil {
		logger.Error("[OAuth] Failed to store token", "err", err)
		return oauthError(c, http.StatusInternalServerError, "server_error", "Failed to issue token")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(app.SessionTTL.Seconds()),
	})
}
