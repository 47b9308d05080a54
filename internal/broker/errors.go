package broker

import "errors"

var (
	// ErrNotConnected is returned when a channel is requested while the
	// connection is down.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrReconnectExhausted is returned once the reconnect attempt budget
	// since the last successful connect is spent. Only an explicit Connect
	// restarts the cycle.
	ErrReconnectExhausted = errors.New("broker: reconnect attempts exhausted")
)
