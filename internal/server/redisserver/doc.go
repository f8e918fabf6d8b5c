// Package redisserver provides the Redis protocol compatible server
// for Cardinal.
//
// This package implements the RESP2 subset Cardinal speaks, using
// only the Go standard library for the wire codec (no third-party
// RESP server).
//
// Supported commands:
//   - PING, ECHO, COMMAND
//   - GET, SET, KEYS
//   - SELECT, CONFIG, INFO
package redisserver
