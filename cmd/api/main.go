package main

import (
	"go.uber.org/fx"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
