// Command centerctl drives the repair center API from the shell.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/garyjia/repair-center/internal/client"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	server  string
	token   string
	timeout time.Duration
	retries int
}

func (g *globalFlags) client() *client.Client {
	return client.New(client.Config{
		BaseURL: g.server,
		Token:   g.token,
		Timeout: g.timeout,
		Retries: g.retries,
	})
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "centerctl",
		Short:         "Command line client for the repair center API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.server, "server", envOr("CENTER_URL", "http://localhost:8080"), "API base URL")
	flags.StringVar(&g.token, "token", os.Getenv("CENTER_TOKEN"), "bearer token")
	flags.DurationVar(&g.timeout, "timeout", 15*time.Second, "request timeout")
	flags.IntVar(&g.retries, "retries", 2, "retries for requests that lost a concurrent update")

	root.AddCommand(
		tokenCommand(),
		receiveCommand(g),
		transitionCommand(g),
		getCommand(g),
		logCommand(g),
		approveCommand(g),
		rejectCommand(g),
		settleCommand(g),
		summaryCommand(g),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
