package middleware

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/prospect/internal/session"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/common"
	"github.com/OFFIS-RIT/prospect/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// APIKeyParam is the route parameter carrying a key in the URL path.
const APIKeyParam = "api_key"

var errUnauthorized = errors.New("unauthorized")

// AuthMiddleware resolves the caller's backend credentials. The first present
// source wins and is never combined with another one:
//
//  1. Authorization header (Bearer master key, session token or JWT; Basic
//     key id and secret)
//  2. X-Api-Key header
//  3. :api_key path segment
//  4. api_key query parameter
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cc := c.(*AppContext)
		creds, err := resolveCredentials(cc)
		if err != nil || creds.IsZero() {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		}
		cc.Creds = creds
		return next(cc)
	}
}

func resolveCredentials(c *AppContext) (common.Credentials, error) {
	req := c.Request()
	if h := req.Header.Get(echo.HeaderAuthorization); h != "" {
		return fromAuthorization(c, h)
	}
	if key := req.Header.Get("X-Api-Key"); key != "" {
		return fromAPIKey(c, key)
	}
	if key := c.Param(APIKeyParam); key != "" {
		return fromAPIKey(c, key)
	}
	if key := c.QueryParam(APIKeyParam); key != "" {
		return fromAPIKey(c, key)
	}
	return common.Credentials{}, errUnauthorized
}

func fromAuthorization(c *AppContext, header string) (common.Credentials, error) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return common.Credentials{}, errUnauthorized
	}

	switch strings.ToLower(scheme) {
	case "bearer":
		if creds, ok := fromSecret(c, value); ok {
			return creds, nil
		}
		return fromJWT(c.App, value)
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return common.Credentials{}, errUnauthorized
		}
		return splitKey(string(raw))
	}
	return common.Credentials{}, errUnauthorized
}

// fromAPIKey accepts "key_id:key_secret", the master key or a session token.
func fromAPIKey(c *AppContext, key string) (common.Credentials, error) {
	if creds, ok := fromSecret(c, key); ok {
		return creds, nil
	}
	return splitKey(key)
}

// fromSecret matches the master key and issued access tokens.
func fromSecret(c *AppContext, value string) (common.Credentials, bool) {
	app := c.App
	if app.MasterAPIKey != "" && value == app.MasterAPIKey {
		return app.DefaultCreds, true
	}
	if app.Sessions == nil || !util.IsNanoid(value) {
		return common.Credentials{}, false
	}

	s, err := app.Sessions.Get(c.Request().Context(), session.TokenKey(value))
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			logger.Error("[Auth] Session lookup failed", "err", err)
		}
		return common.Credentials{}, false
	}
	return s.Credentials(), true
}

func fromJWT(app *App, token string) (common.Credentials, error) {
	if app.JWTKeyfunc == nil {
		return common.Credentials{}, errUnauthorized
	}
	parsed, err := jwt.Parse(token, app.JWTKeyfunc)
	if err != nil || !parsed.Valid {
		return common.Credentials{}, errUnauthorized
	}
	return app.DefaultCreds, nil
}

func splitKey(key string) (common.Credentials, error) {
	id, secret, ok := strings.Cut(key, ":")
	if !ok || id == "" || secret == "" {
		return common.Credentials{}, errUnauthorized
	}
	return common.Credentials{KeyID: id, KeySecret: secret}, nil
}
