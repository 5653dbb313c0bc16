package material

import "go.uber.org/fx"

// Module provides the material repository to Fx.
var Module = fx.Provide(NewRepository)
