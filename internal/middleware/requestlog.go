package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/limited-seats/internal/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestLog tags every request with an id (taken from X-Request-ID when
// the caller sent one) and logs one line per request once it completes.
// The tagged logger is stored in the request context, so service log
// lines carry the same request_id.
func RequestLog(l logger.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            rid := req.Header.Get(HeaderRequestID)
            if rid == "" {
                rid = uuid.NewString()
            }
            c.Response().Header().Set(HeaderRequestID, rid)

            ctx := l.WithContext(req.Context(), "request_id", rid)
            c.SetRequest(req.WithContext(ctx))

            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err) // commits the response, so status below is final
            }

            status := c.Response().Status
            latency := time.Since(start)
            switch {
            case status >= 500:
                l.Errorf(ctx, "%s %s -> %d (%s) ip=%s err=%v", req.Method, req.URL.Path, status, latency, c.RealIP(), err)
            case status >= 400:
                l.Warnf(ctx, "%s %s -> %d (%s) ip=%s", req.Method, req.URL.Path, status, latency, c.RealIP())
            default:
                l.Infof(ctx, "%s %s -> %d (%s)", req.Method, req.URL.Path, status, latency)
            }
            return nil
        }
    }
}
