package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "producer",
		Usage: "Publish messages to a topic",
		Before: func(c *cli.Context) error {
			// Optional .env overlay; absence is not an error.
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "send",
				Usage:  "Send messages to the given topic",
				Flags:  sendFlags(),
				Action: run,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
