package http

import (
	"go.uber.org/fx"

	checkouttransport "github.com/Zannatul-Fahmida/e-commerce-core/internal/transport/http/checkout"
	ordertransport "github.com/Zannatul-Fahmida/e-commerce-core/internal/transport/http/order"
	paymenttransport "github.com/Zannatul-Fahmida/e-commerce-core/internal/transport/http/payment"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	checkouttransport.Module,
	ordertransport.Module,
	paymenttransport.Module,
)
