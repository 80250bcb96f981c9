package checkout

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/gateway"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/messaging"
	orderrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
	productrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/product"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/session"
)

// Module provides the checkout service to Fx.
var Module = fx.Provide(
	func(orders *orderrepo.Repository, products *productrepo.Repository, profiles session.Profiles, broker gateway.Broker, client messaging.Client, cfg config.Config, logger *zap.Logger) *Service {
		return NewService(orders, products, profiles, broker, client, cfg.Messaging.Enabled, cfg.Checkout, logger)
	},
)
