package reconcile

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/messaging"
	orderrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
)

// Module provides the reconciliation service to Fx.
var Module = fx.Provide(
	func(repo *orderrepo.Repository, logger *zap.Logger, client messaging.Client, cfg config.Config) *Service {
		return NewService(repo, logger, client, cfg.Messaging.Enabled)
	},
)
