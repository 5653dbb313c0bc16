package http

import (
	"github.com/labstack/echo/v4"

	"github.com/fabworks/foundry/internal/actor"
)

// Header names populated by the upstream auth collaborator.
const (
	HeaderActorEmail = "X-Actor-Email"
	HeaderActorRole  = "X-Actor-Role"
)

// ActorMiddleware copies the resolved caller identity from request headers
// into the request context. Session resolution itself happens upstream; this
// core only consumes the result.
func ActorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := actor.Actor{
				Email: c.Request().Header.Get(HeaderActorEmail),
				Role:  c.Request().Header.Get(HeaderActorRole),
			}
			if a.Role == "" {
				a.Role = "USER"
			}
			ctx := actor.WithContext(c.Request().Context(), a)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
