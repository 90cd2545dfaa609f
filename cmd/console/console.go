package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/runtime"
)

var consoleCommands = []string{"new", "thread", "status", "help", "exit"}

type console struct {
	orch     *runtime.Orchestrator
	editor   lineEditor
	threadID string

	assistantLabel *color.Color
	approvalLabel  *color.Color
	errorLabel     *color.Color
	infoLabel      *color.Color
}

func newConsole(orch *runtime.Orchestrator, editor lineEditor, threadID string) *console {
	if strings.TrimSpace(threadID) == "" {
		threadID = uuid.NewString()
	}
	return &console{
		orch:           orch,
		editor:         editor,
		threadID:       threadID,
		assistantLabel: color.New(color.FgCyan, color.Bold),
		approvalLabel:  color.New(color.FgYellow, color.Bold),
		errorLabel:     color.New(color.FgRed, color.Bold),
		infoLabel:      color.New(color.Faint),
	}
}

// Run reads lines until exit or EOF. Slash commands are handled locally;
// everything else becomes one conversation turn.
func (c *console) Run(ctx context.Context) error {
	out := c.editor.Output()
	c.infoLabel.Fprintf(out, "thread %s (/help for commands)\n", c.threadID)
	for {
		line, err := c.editor.ReadLine("> ")
		if err != nil {
			if errors.Is(err, errInputInterrupt) {
				continue
			}
			if errors.Is(err, errInputEOF) {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := c.handleCommand(ctx, line)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			continue
		}
		if err := c.runTurn(ctx, line); err != nil {
			return err
		}
	}
}

func (c *console) handleCommand(ctx context.Context, line string) (bool, error) {
	out := c.editor.Output()
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "exit", "quit":
		return true, nil
	case "new":
		c.threadID = uuid.NewString()
		c.infoLabel.Fprintf(out, "new thread %s\n", c.threadID)
	case "thread":
		if len(fields) > 1 {
			c.threadID = fields[1]
		}
		c.infoLabel.Fprintf(out, "thread %s\n", c.threadID)
	case "status":
		state, err := c.orch.RunState(ctx, c.threadID)
		if err != nil {
			return false, err
		}
		c.printStatus(out, state)
	case "help":
		fmt.Fprintln(out, "commands:")
		for _, cmd := range consoleCommands {
			fmt.Fprintf(out, "  /%s\n", cmd)
		}
	default:
		c.errorLabel.Fprintf(out, "unknown command %q\n", fields[0])
	}
	return false, nil
}

func (c *console) printStatus(out io.Writer, state runtime.RunState) {
	if !state.HasLifecycle {
		c.infoLabel.Fprintf(out, "thread %s has no activity yet\n", c.threadID)
		return
	}
	fmt.Fprintf(out, "status: %s (phase %s)\n", state.Status, state.Phase)
	if state.Error != "" {
		c.errorLabel.Fprintf(out, "last error: %s", state.Error)
		if state.ErrorCode != "" {
			fmt.Fprintf(out, " [%s]", state.ErrorCode)
		}
		fmt.Fprintln(out)
	}
}

// runTurn drives one turn, looping through approval prompts until the
// turn reaches a final result.
func (c *console) runTurn(ctx context.Context, text string) error {
	out := c.editor.Output()
	res, err := c.orch.StartTurn(ctx, c.threadID, text)
	if err != nil {
		return err
	}
	for res.Kind == runtime.TurnResultInterrupted {
		decision, err := c.promptApproval(res.Interrupt)
		if err != nil {
			if errors.Is(err, errInputEOF) || errors.Is(err, errInputInterrupt) {
				decision = runtime.DecisionDenied
			} else {
				return err
			}
		}
		if res, err = c.orch.Resume(ctx, c.threadID, decision); err != nil {
			return err
		}
	}
	if !res.Success {
		message := "turn failed"
		if res.Err != nil {
			message = res.Err.Error()
		}
		c.errorLabel.Fprintf(out, "%s", message)
		if code := host.ErrorCodeOf(res.Err); code != "" {
			fmt.Fprintf(out, " [%s]", code)
		}
		fmt.Fprintln(out)
		return nil
	}
	c.assistantLabel.Fprint(out, "assistant: ")
	fmt.Fprintln(out, strings.TrimSpace(res.Text))
	return nil
}

func (c *console) promptApproval(interrupt *runtime.Interrupt) (runtime.Decision, error) {
	out := c.editor.Output()
	c.approvalLabel.Fprintf(out, "approval required: %s\n", interrupt.ToolName)
	if interrupt.Message != "" {
		fmt.Fprintf(out, "  %s\n", interrupt.Message)
	}
	if args := formatArguments(interrupt.Arguments); args != "" {
		fmt.Fprintln(out, indentLines(args, "  "))
	}
	answer, err := c.editor.ReadLine("approve? [y/N] ")
	if err != nil {
		return runtime.DecisionDenied, err
	}
	return parseApproval(answer), nil
}

func parseApproval(answer string) runtime.Decision {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "approve", "approved":
		return runtime.DecisionApproved
	default:
		return runtime.DecisionDenied
	}
}

// formatArguments renders tool arguments one per line; the code argument
// is printed verbatim so multi-line snippets stay readable.
func formatArguments(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if text, ok := args[key].(string); ok && strings.Contains(text, "\n") {
			b.WriteString(key + ":\n" + indentLines(text, "  "))
			continue
		}
		raw, err := json.Marshal(args[key])
		if err != nil {
			raw = []byte(fmt.Sprintf("%v", args[key]))
		}
		b.WriteString(key + ": " + string(raw))
	}
	return b.String()
}

func indentLines(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
