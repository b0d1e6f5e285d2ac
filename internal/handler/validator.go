package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo so c.Validate
// checks the `validate` tags of request bodies.
type RequestValidator struct {
    v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
    v := validator.New()
    // Report json names ("quantity") instead of Go field names.
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
    return rv.v.Struct(i)
}

// bindValid binds the request into dst and validates it.  The returned
// message is safe to show to the client.
func bindValid(c echo.Context, dst interface{}) (string, bool) {
    if err := c.Bind(dst); err != nil {
        return "invalid request body", false
    }
    if err := c.Validate(dst); err != nil {
        return validationMessage(err), false
    }
    return "", true
}

func validationMessage(err error) string {
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return "invalid request"
    }
    msgs := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        if fe.Param() != "" {
            msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
        } else {
            msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
        }
    }
    return strings.Join(msgs, "; ")
}
