// The api binary serves the job order API directly, without the CLI wrapper.
package main

import (
	"go.uber.org/fx"

	"github.com/fabworks/foundry/internal/app"
)

func main() {
	fx.New(app.HTTP).Run()
}
