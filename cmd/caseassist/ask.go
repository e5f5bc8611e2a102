package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/a-h/caseassist/client"
	"github.com/a-h/caseassist/models"
)

type AskCommand struct {
	Question   string `arg:"" help:"The question to ask."`
	ServerURL  string `help:"The URL of the case assistant server." env:"CASEASSIST_URL" default:"http://localhost:3001"`
	Token      string `help:"The access token for the case assistant server." env:"CASEASSIST_TOKEN" default:""`
	CaseNumber string `help:"The case the question is about." env:"CASE_NUMBER" default:""`
	NoSources  bool   `help:"Do not print the sources after the answer." default:"false"`
	LogLevel   string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c AskCommand) Run(ctx context.Context) (err error) {
	cc := client.New(c.ServerURL, c.Token)
	req := models.ChatCompletionsPostRequest{
		Messages: []models.ChatMessage{
			{Role: models.ChatRoleUser, Content: c.Question},
		},
		CaseNumber: c.CaseNumber,
	}
	p := &answerPrinter{w: os.Stdout}
	if err = cc.ChatCompletions(ctx, req, p.Print); err != nil {
		return err
	}
	if c.NoSources {
		return nil
	}
	return writeSourceList(os.Stdout, p.sources)
}

// answerPrinter writes the new part of each chunk.
type answerPrinter struct {
	w       io.Writer
	printed int
	sources []models.FormattedSource
}

func (p *answerPrinter) Print(ctx context.Context, chunk models.StreamingChunk) (err error) {
	p.sources = chunk.Sources
	if len(chunk.Content) > p.printed {
		if _, err = io.WriteString(p.w, chunk.Content[p.printed:]); err != nil {
			return err
		}
		p.printed = len(chunk.Content)
	}
	if chunk.IsComplete {
		_, err = io.WriteString(p.w, "\n")
	}
	return err
}

func writeSourceList(w io.Writer, sources []models.FormattedSource) (err error) {
	if len(sources) == 0 {
		return nil
	}
	if _, err = fmt.Fprintln(w, "\nSources:"); err != nil {
		return err
	}
	for i, s := range sources {
		line := fmt.Sprintf("%d. %s (score %.2f)", i+1, s.Title, s.Score)
		if s.URL != "" {
			line += " " + s.URL
		}
		if _, err = fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
