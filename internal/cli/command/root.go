// Package command provides CLI command definitions for cardinal-cli.
//
// It uses urfave/cli/v2 for command parsing. Each subcommand maps to
// a single server command and prints the decoded reply.
package command

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/cardinalkv/cardinal/internal/cli/client"
	"github.com/cardinalkv/cardinal/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	app := &cli.App{
		Name:    "cardinal-cli",
		Usage:   "Cardinal command-line client",
		Version: buildinfo.Get().String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			EchoCommand(),
			GetCommand(),
			SetCommand(),
			KeysCommand(),
			InfoCommand(),
			ConfigGetCommand(),
		},
	}

	return app
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Cardinal server address (e.g., localhost:6379)",
			EnvVars: []string{"CARDINAL_SERVER"},
			Value:   "localhost:6379",
		},
		&cli.IntFlag{
			Name:    "db",
			Aliases: []string{"n"},
			Usage:   "Database index to select before running the command",
		},
	}
}

// connect dials the configured server and selects the requested
// database when --db is set.
func connect(c *cli.Context) (*client.Client, error) {
	cl, err := client.Dial(c.String("server"))
	if err != nil {
		return nil, err
	}

	if db := c.Int("db"); db != 0 {
		reply, err := cl.Do("SELECT", strconv.Itoa(db))
		if err != nil {
			cl.Close()
			return nil, err
		}
		if reply.Type == client.ReplyError {
			cl.Close()
			return nil, fmt.Errorf("%w: %s", client.ErrServerReply, reply.Str)
		}
	}

	return cl, nil
}

// run dials, sends a single command, and prints the reply.
func run(c *cli.Context, args ...string) error {
	cl, err := connect(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	reply, err := cl.Do(args...)
	if err != nil {
		return err
	}

	fmt.Println(reply.Format())
	if reply.Type == client.ReplyError {
		return cli.Exit("", 1)
	}
	return nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
