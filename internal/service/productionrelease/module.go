package productionrelease

import "go.uber.org/fx"

// Module provides the production release service to Fx.
var Module = fx.Provide(NewService)
