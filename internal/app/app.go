package app

import (
	"go.uber.org/fx"

	"github.com/fabworks/foundry/internal/cache"
	"github.com/fabworks/foundry/internal/config"
	"github.com/fabworks/foundry/internal/database"
	"github.com/fabworks/foundry/internal/logger"
	"github.com/fabworks/foundry/internal/messaging"
	"github.com/fabworks/foundry/internal/observability"
	repositoryinvoice "github.com/fabworks/foundry/internal/repository/invoice"
	repositoryjoborder "github.com/fabworks/foundry/internal/repository/joborder"
	repositorymaterial "github.com/fabworks/foundry/internal/repository/material"
	repositoryrelease "github.com/fabworks/foundry/internal/repository/productionrelease"
	grpcserver "github.com/fabworks/foundry/internal/server/grpc"
	httpserver "github.com/fabworks/foundry/internal/server/http"
	serviceinvoice "github.com/fabworks/foundry/internal/service/invoice"
	servicejoborder "github.com/fabworks/foundry/internal/service/joborder"
	servicerelease "github.com/fabworks/foundry/internal/service/productionrelease"
	transporthttp "github.com/fabworks/foundry/internal/transport/http"
	"github.com/fabworks/foundry/internal/worker"
	workerjoborder "github.com/fabworks/foundry/internal/worker/joborder"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryjoborder.Module,
	repositorymaterial.Module,
	repositoryrelease.Module,
	repositoryinvoice.Module,
	servicejoborder.Module,
	servicerelease.Module,
	serviceinvoice.Module,
)

// HTTP wires the HTTP transport on top of the core modules. The gRPC
// endpoint runs alongside it for health checks.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerjoborder.Module,
)
