package app

import (
	"go.uber.org/fx"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/cache"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/database"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/gateway"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/logger"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/messaging"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/observability"
	repositoryorder "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
	repositoryproduct "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/product"
	repositoryuser "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/user"
	httpserver "github.com/Zannatul-Fahmida/e-commerce-core/internal/server/http"
	servicecheckout "github.com/Zannatul-Fahmida/e-commerce-core/internal/service/checkout"
	servicereconcile "github.com/Zannatul-Fahmida/e-commerce-core/internal/service/reconcile"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/session"
	transporthttp "github.com/Zannatul-Fahmida/e-commerce-core/internal/transport/http"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/worker"
	workerpayment "github.com/Zannatul-Fahmida/e-commerce-core/internal/worker/payment"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	gateway.Module,
	session.Module,
	repositoryorder.Module,
	repositoryproduct.Module,
	repositoryuser.Module,
	servicecheckout.Module,
	servicereconcile.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerpayment.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
