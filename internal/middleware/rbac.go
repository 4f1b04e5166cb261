package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// AccountAdmin is the account role that resolves disputes and reads stats.
// Party roles inside a deal are derived from the work item, not the token.
const AccountAdmin = "admin"

var (
	ErrRoleMissing = errors.New("not permitted: token carries no account role")
	ErrRoleDenied  = errors.New("not permitted")
)

// CheckAccountRole returns nil when role is one of allowed.
func CheckAccountRole(role string, allowed ...string) error {
	if role == "" {
		return ErrRoleMissing
	}
	if slices.Contains(allowed, role) {
		return nil
	}
	return fmt.Errorf("%w: %s may not do this, requires %s", ErrRoleDenied, role, strings.Join(allowed, " or "))
}

// RequireAccountRole limits a route group to tokens issued for one of the
// allowed account roles. JWT must run first.
func RequireAccountRole(allowed ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			if err := CheckAccountRole(role, allowed...); err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
			}
			return next(c)
		}
	}
}

var AdminGuard = RequireAccountRole(AccountAdmin)
