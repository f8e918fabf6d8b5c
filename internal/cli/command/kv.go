// Package command provides CLI command definitions for cardinal-cli.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get the string value of a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one key, got %d arguments", c.NArg())
			}
			return run(c, "GET", c.Args().First())
		},
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Set a key to a string value",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "px",
				Usage: "Expiry in milliseconds",
			},
			&cli.Uint64Flag{
				Name:  "ex",
				Usage: "Expiry in seconds",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expected key and value, got %d arguments", c.NArg())
			}
			args := []string{"SET", c.Args().Get(0), c.Args().Get(1)}
			switch {
			case c.IsSet("px"):
				args = append(args, "PX", fmt.Sprintf("%d", c.Uint64("px")))
			case c.IsSet("ex"):
				args = append(args, "EX", fmt.Sprintf("%d", c.Uint64("ex")))
			}
			return run(c, args...)
		},
	}
}

// KeysCommand returns the keys command.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Usage:     "List keys matching a pattern",
		ArgsUsage: "[PATTERN]",
		Action: func(c *cli.Context) error {
			pattern := "*"
			if c.NArg() > 0 {
				pattern = c.Args().First()
			}
			return run(c, "KEYS", pattern)
		},
	}
}
