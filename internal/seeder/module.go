package seeder

import "go.uber.org/fx"

// Module wires the database seeder.
var Module = fx.Options(
	fx.Provide(New),
)
