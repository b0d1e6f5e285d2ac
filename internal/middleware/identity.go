package middleware

// identity.go exposes the verified identity stored by JWTAuth/OptionalJWT.
// Every helper returns "" for anonymous requests.

import "github.com/labstack/echo/v4"

// UserID returns the verified subject of the request.
func UserID(c echo.Context) string { return str(c, ctxUserID) }

// Email returns the verified email claim of the request.
func Email(c echo.Context) string { return str(c, ctxEmail) }

// Role returns the role claim of the request.
func Role(c echo.Context) string { return str(c, ctxRole) }

func str(c echo.Context, key string) string {
    if s, ok := c.Get(key).(string); ok {
        return s
    }
    return ""
}
