package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/a-h/caseassist/client"
)

type PingCommand struct {
	ServerURL string `help:"The URL of the case assistant server." env:"CASEASSIST_URL" default:"http://localhost:3001"`
	Token     string `help:"The access token for the case assistant server." env:"CASEASSIST_TOKEN" default:""`
	LogLevel  string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c PingCommand) Run(ctx context.Context) (err error) {
	cc := client.New(c.ServerURL, c.Token)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	health, err := cc.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if err = enc.Encode(health); err != nil {
		return err
	}

	tc, err := cc.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	if err = enc.Encode(tc); err != nil {
		return err
	}
	if !tc.Success {
		return errors.New(tc.Error)
	}
	return nil
}
