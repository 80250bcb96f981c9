package gateway

import "go.uber.org/fx"

// Module provides the gateway session client to Fx.
var Module = fx.Provide(
	NewClient,
	func(c *Client) Broker { return c },
)
