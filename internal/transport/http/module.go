package http

import (
	"go.uber.org/fx"

	"github.com/labstack/echo/v4"

	invoicetransport "github.com/fabworks/foundry/internal/transport/http/invoice"
	jobordertransport "github.com/fabworks/foundry/internal/transport/http/joborder"
	releasetransport "github.com/fabworks/foundry/internal/transport/http/productionrelease"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	fx.Invoke(func(e *echo.Echo) {
		e.Use(ActorMiddleware())
	}),
	jobordertransport.Module,
	releasetransport.Module,
	invoicetransport.Module,
)
