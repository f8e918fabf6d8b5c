// Package command provides CLI command definitions for cardinal-cli.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:      "ping",
		Usage:     "Ping the server",
		ArgsUsage: "[MESSAGE]",
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return run(c, "PING", c.Args().First())
			}
			return run(c, "PING")
		},
	}
}

// EchoCommand returns the echo command.
func EchoCommand() *cli.Command {
	return &cli.Command{
		Name:      "echo",
		Usage:     "Echo a message back from the server",
		ArgsUsage: "MESSAGE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one message, got %d arguments", c.NArg())
			}
			return run(c, "ECHO", c.Args().First())
		},
	}
}

// InfoCommand returns the info command.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show server information",
		Action: func(c *cli.Context) error {
			return run(c, "INFO")
		},
	}
}

// ConfigGetCommand returns the config-get command.
func ConfigGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "config-get",
		Usage:     "Read a server configuration parameter",
		ArgsUsage: "PARAMETER",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one parameter, got %d arguments", c.NArg())
			}
			return run(c, "CONFIG", "GET", c.Args().First())
		},
	}
}
