package main

import "time"

const (
	serialReadBufSize = 256 // a LIN frame is at most 12 bytes on the wire
	eventQueueSize    = 64  // pending signal transitions for MQTT/state store
	exportQueueSize   = 256 // frames waiting for the hub broadcast worker
	rxBackoffMin      = 20 * time.Millisecond
	rxBackoffMax      = 500 * time.Millisecond
)
