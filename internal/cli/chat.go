// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive triage session.
//
// Command: chat
// Short:   Start an interactive triage session
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /clear, /c          Clear conversation history
//   /history            Show conversation history
//   /stats, /s          Show routing statistics
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current answer (at the prompt: exit)
//   Ctrl+D              Exit chat
//
// Keyword rules are reloaded when the config file changes.

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/triage-router/internal/config"
	"github.com/jeranaias/triage-router/internal/model"
	"github.com/jeranaias/triage-router/internal/router"
	"github.com/jeranaias/triage-router/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads one line. Non-empty lines are added to history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history (mode 0600) and restores the terminal.
func (c *ChatCLI) Close() {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err == nil {
		_ = util.AtomicWriteFile(c.historyFile, buf.Bytes(), 0o600)
	}
	c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// ChatSession is the conversation state of one chat.
type ChatSession struct {
	Router   *router.Router
	History  []model.Message
	Markdown bool
	Verbose  bool

	Out    io.Writer
	Status io.Writer

	Turns    int
	Failures int
}

// Send routes input with the conversation so far and writes the answer.
// The exchange is added to History unless it failed without any text.
func (s *ChatSession) Send(ctx context.Context, input string) (string, *router.Failure) {
	outcome := s.Router.Route(ctx, model.NewUtterance(input, s.History))
	if s.Status != nil {
		fmt.Fprintln(s.Status, RouteBadge(outcome))
	}

	answer, failure := streamAnswer(s.Out, outcome.Chunks, s.Markdown)
	s.Turns++
	if failure != nil {
		s.Failures++
		printFailure(s.Out, failure, s.Verbose)
	}
	if answer != "" || failure == nil {
		s.History = append(s.History,
			model.NewUserMessage(input),
			model.NewAssistantMessage(answer))
	}
	return answer, failure
}

// handleSlash runs a slash command. It returns false when the session
// should end.
func (s *ChatSession) handleSlash(input string, stats func() string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/q", "/exit":
		return false
	case "/clear", "/c":
		s.History = nil
		fmt.Fprintln(s.Out, SuccessStyle.Render("Conversation cleared."))
	case "/history":
		if len(s.History) == 0 {
			fmt.Fprintln(s.Out, DimStyle.Render("(no history)"))
		}
		for _, m := range s.History {
			fmt.Fprintf(s.Out, "%s %s\n", LabelStyle.Render(m.Role.DisplayName()+":"), util.TruncateRunes(util.SingleLine(m.Content), 100))
		}
	case "/stats", "/s":
		fmt.Fprint(s.Out, stats())
	case "/help", "/h":
		fmt.Fprintln(s.Out, chatHelp)
	default:
		fmt.Fprintln(s.Out, WarningStyle.Render("Unknown command "+fields[0]+". Type /help."))
	}
	return true
}

const chatHelp = `Commands:
  /help, /h      Show this help
  /clear, /c     Clear conversation history
  /history       Show conversation history
  /stats, /s     Show routing statistics
  /quit, /q      Exit chat`

// NewChatCmd creates the chat command.
func NewChatCmd(opts *GlobalOptions) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive triage session",
		Long: `Start an interactive triage session.

Earlier turns are sent along with each question so follow-ups keep their
context. Edits to the config file's keyword lists apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			// The root context is cancelled by Ctrl+C; chat handles Ctrl+C
			// per answer instead.
			base, cancel := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer cancel()

			app, err := NewApp(base, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Warn("shutdown", "err", err)
				}
			}()

			if !noWatch {
				watchConfig(base, opts.ConfigPath, app.Router, logger)
			}

			session := &ChatSession{
				Router:   app.Router,
				Markdown: IsStdoutTTY(),
				Verbose:  opts.Verbose,
				Out:      cmd.OutOrStdout(),
				Status:   cmd.ErrOrStderr(),
			}
			return runChat(base, session, func() string { return formatStats(app.Stats.Snapshot()) })
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Don't reload keyword rules when the config file changes")
	return cmd
}

func runChat(ctx context.Context, s *ChatSession, stats func() string) error {
	input := NewChatCLI()
	defer input.Close()

	fmt.Fprintln(s.Out, TitleStyle.Render("Triage chat")+"\n"+DimStyle.Render("Type /help for commands, Ctrl+D to exit."))

	for {
		line, err := input.ReadInput(PromptStyle.Render("triage> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(s.Out)
			break
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if !s.handleSlash(line, stats) {
				return nil
			}
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			return nil
		}

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		s.Send(turnCtx, line)
		if turnCtx.Err() != nil && ctx.Err() == nil {
			fmt.Fprintln(s.Out, WarningStyle.Render("[Cancelled]"))
		}
		stop()
	}
	return nil
}

// watchConfig reloads keyword rules into r when the config file changes.
func watchConfig(ctx context.Context, path string, r *router.Router, logger *log.Logger) {
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			logger.Debug("config watch disabled", "err", err)
			return
		}
		path = p
	}

	err := config.Watch(ctx, path, config.DefaultDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed, keeping previous rules", "err", err)
			return
		}
		rules, err := RulesFromConfig(cfg)
		if err != nil {
			logger.Warn("config reload failed, keeping previous rules", "err", err)
			return
		}
		r.SetRules(rules)
		logger.Info("keyword rules reloaded", "basic", len(rules.Basic), "advanced", len(rules.Advanced), "priority", rules.Priority)
	})
	if err != nil {
		logger.Debug("config watch disabled", "path", path, "err", err)
	}
}
