package productionrelease

import "go.uber.org/fx"

// Module provides the production release repository to Fx.
var Module = fx.Provide(NewRepository)
