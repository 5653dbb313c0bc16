package migration

import "go.uber.org/fx"

// Module wires the goose migrator.
var Module = fx.Options(
	fx.Provide(New),
)
