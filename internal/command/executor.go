// Package command runs the text commands shared by the TUI, the CLI and the
// HTTP API
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/bill-printer/internal/renderer"
	"github.com/thereceipt/bill-printer/internal/session"
)

// Executor executes commands against a printer session and its queue
type Executor struct {
	session   *session.Session
	queue     *session.Queue
	storeName string
	footer    string
	composer  *renderer.Composer
}

// NewExecutor creates a new command executor
func NewExecutor(s *session.Session, q *session.Queue) *Executor {
	return &Executor{
		session:  s,
		queue:    q,
		composer: renderer.NewComposer(),
	}
}

// SetReceiptText overrides the store name and footer of composed receipts.
// Empty values keep the built-in defaults.
func (e *Executor) SetReceiptText(storeName, footer string) {
	e.storeName = storeName
	e.footer = footer
}

// Result represents the result of executing a command
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return failure("empty command")
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "help":
		return e.handleHelp()
	case "status":
		return e.handleStatus()
	case "devices":
		return e.handleDevices()
	case "discover":
		return e.handleDiscover(ctx)
	case "connect":
		return e.handleConnect(ctx, args)
	case "disconnect":
		return e.handleDisconnect()
	case "preview":
		return e.handlePreview(args)
	case "print":
		return e.handlePrint(args)
	case "save":
		return e.handleSave(args)
	case "jobs":
		return e.handleJobs()
	case "job":
		return e.handleJob(args)
	default:
		return failure("unknown command: %s. Type 'help' for available commands", command)
	}
}

// parseCommand splits a command line on spaces; single or double quotes keep
// spaces inside one argument
func parseCommand(cmdStr string) []string {
	var parts []string
	var current strings.Builder
	var quote rune

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.TrimSpace(cmdStr) {
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == ' ' || r == '\t'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return parts
}
