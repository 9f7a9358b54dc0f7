// Package bridge connects on-robot nodes to the brain over WebSocket. A
// robot pairs with a shared token, then streams utterances and context
// updates and receives replies with navigation goals.
package bridge

import "errors"

// Sentinel errors for the bridge package.
var (
	ErrInvalidToken = errors.New("bridge: invalid pairing token")
	ErrMaxRobots    = errors.New("bridge: maximum number of robots reached")
)
