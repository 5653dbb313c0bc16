package joborder

import "go.uber.org/fx"

// Module provides the job order repository to Fx.
var Module = fx.Provide(NewRepository)
