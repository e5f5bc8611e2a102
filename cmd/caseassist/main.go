package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type CLI struct {
	Serve   ServeCommand   `cmd:"serve" help:"Start the case assistant server."`
	Import  ImportCommand  `cmd:"import" help:"Import a directory of documents into the search index."`
	Search  SearchCommand  `cmd:"search" help:"Search the index and print the sources that would be sent to the LLM."`
	Ask     AskCommand     `cmd:"ask" help:"Ask the case assistant a single question."`
	Chat    ChatCommand    `cmd:"chat" help:"Chat with the case assistant."`
	Ping    PingCommand    `cmd:"ping" help:"Check that the server and its LLM connection are working."`
	Version VersionCommand `cmd:"version" help:"Print the version of the case assistant."`
}

func main() {
	// Settings in a .env file are used unless they're already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		getLogger("error").Error("failed to load .env file", slog.Any("error", err))
		os.Exit(1)
	}
	var cli CLI
	ctx := context.Background()
	kctx := kong.Parse(&cli, kong.UsageOnError(), kong.BindTo(ctx, (*context.Context)(nil)))
	if err := kctx.Run(); err != nil {
		log := getLogger("error")
		log.Error("error", slog.Any("error", err))
		os.Exit(1)
	}
}

func getLogger(level string) *slog.Logger {
	ll := slog.LevelInfo
	switch level {
	case "debug":
		ll = slog.LevelDebug
	case "info":
		ll = slog.LevelInfo
	case "warn":
		ll = slog.LevelWarn
	case "error":
		ll = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: ll,
	}))
}
