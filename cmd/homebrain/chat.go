package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/transport"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to homebrain in the terminal",
		Long: `Start an interactive session against the configured engine.

Replies stream as they are generated. When routing is uncertain homebrain
lists the capabilities to choose from; answer with a number or a name.
Type /new to start a fresh thread and /quit (or Ctrl-D) to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			s := &chatSession{
				runner:   a.engine,
				in:       bufio.NewScanner(cmd.InOrStdin()),
				out:      cmd.OutOrStdout(),
				threadID: threadID,
			}
			return s.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "continue an existing thread")
	return cmd
}

// chatSession drives a terminal conversation over a TurnRunner.
type chatSession struct {
	runner   transport.TurnRunner
	in       *bufio.Scanner
	out      io.Writer
	threadID string
}

func (s *chatSession) run(ctx context.Context) error {
	for {
		line, ok := s.prompt("> ")
		if !ok {
			return s.in.Err()
		}
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			s.threadID = ""
			fmt.Fprintln(s.out, "(new thread)")
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(s.out, "error: %s\n", transport.APIErrorFromError(err).Message)
		}
	}
}

// turn runs one message, resolving a clarification inline when asked.
func (s *chatSession) turn(ctx context.Context, text string) error {
	var last api.StreamEvent
	w := s.writer(&last)

	threadID, err := s.runner.RunTurnStream(ctx, s.threadID, text, w)
	if threadID != "" {
		s.threadID = threadID
	}
	if err != nil && last.Type != api.EventError {
		return err
	}

	if last.Type == api.EventClarification && last.Clarification != nil {
		choice, ok := s.choose(last.Clarification)
		if !ok {
			return s.in.Err()
		}
		last = api.StreamEvent{}
		if err := s.runner.ResumeStream(ctx, s.threadID, choice, w); err != nil && last.Type != api.EventError {
			return err
		}
	}
	return nil
}

func (s *chatSession) writer(last *api.StreamEvent) transport.EventWriter {
	return transport.EventWriterFunc(func(_ context.Context, ev api.StreamEvent) error {
		*last = ev
		switch ev.Type {
		case api.EventToken:
			fmt.Fprint(s.out, ev.Data)
		case api.EventDone:
			fmt.Fprintln(s.out)
		case api.EventError:
			fmt.Fprintf(s.out, "\nerror: %s\n", ev.Message)
		}
		return nil
	})
}

// choose shows the clarification and maps a numbered or named answer to a
// route. Unrecognized answers are passed through; the engine treats them as
// general.
func (s *chatSession) choose(p *api.PendingClarification) (string, bool) {
	fmt.Fprintln(s.out, p.Prompt)
	for i, opt := range p.Options {
		fmt.Fprintf(s.out, "  %d) %s\n", i+1, opt)
	}
	answer, ok := s.prompt("? ")
	if !ok {
		return "", false
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(p.Options) {
		return string(p.Options[n-1]), true
	}
	return answer, true
}

func (s *chatSession) prompt(prefix string) (string, bool) {
	fmt.Fprint(s.out, prefix)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}
