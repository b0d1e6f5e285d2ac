package middleware // reusable HTTP middleware for the seat engine

import (
    "net/http" // HTTP status codes for responses
    "strings"  // prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT parsing and validation
    "github.com/labstack/echo/v4"  // Echo middleware signatures
)

// Context keys filled by JWTAuth and OptionalJWT.
const (
    ctxUserID = "user_id"
    ctxEmail  = "email"
    ctxRole   = "role"
)

// JWTAuth returns an Echo middleware that requires a valid HS256 Bearer
// token issued by the identity provider.  The verified subject, email and
// role claims are stored in the context as strings so handlers can read
// them with UserID, Email and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := parseClaims(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            setIdentity(c, claims)
            return next(c)
        }
    }
}

// OptionalJWT behaves like JWTAuth when a Bearer token is present and lets
// anonymous requests through untouched.  A token that is present but
// invalid is still rejected, never downgraded to a guest.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if auth == "" {
                return next(c)
            }
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "malformed authorization header"})
            }
            claims, err := parseClaims(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            setIdentity(c, claims)
            return next(c)
        }
    }
}

func parseClaims(secret, raw string) (jwt.MapClaims, error) {
    // Reject anything not signed with HMAC before handing out the key.
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return nil, echo.ErrUnauthorized
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return nil, echo.ErrUnauthorized
    }
    if sub, _ := claims["sub"].(string); sub == "" {
        return nil, echo.ErrUnauthorized
    }
    return claims, nil
}

func setIdentity(c echo.Context, claims jwt.MapClaims) {
    sub, _ := claims["sub"].(string)
    email, _ := claims["email"].(string)
    role, _ := claims["role"].(string)
    c.Set(ctxUserID, sub)
    c.Set(ctxEmail, email)
    c.Set(ctxRole, role)
}
