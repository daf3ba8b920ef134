// Package timeouts defines the durations shared by dicebot services and
// their clients.
package timeouts

import "time"

// GRPCDial caps the wait for the dice service to report healthy.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single roll request made by a client.
const GRPCRequest = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// WSWrite bounds a single websocket frame write.
const WSWrite = 5 * time.Second

// Shutdown limits how long a server waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
