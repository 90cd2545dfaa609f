package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/basnijholt/kernelchat/internal/envload"
	"github.com/basnijholt/kernelchat/internal/version"
	"github.com/basnijholt/kernelchat/kernel/host/yaegihost"
	"github.com/basnijholt/kernelchat/kernel/model/providers"
	"github.com/basnijholt/kernelchat/kernel/policy"
	"github.com/basnijholt/kernelchat/kernel/runtime"
	"github.com/basnijholt/kernelchat/kernel/session"
	"github.com/basnijholt/kernelchat/kernel/session/filestore"
	"github.com/basnijholt/kernelchat/kernel/session/inmemory"
	"github.com/basnijholt/kernelchat/kernel/session/sqlitestore"
	"github.com/basnijholt/kernelchat/kernel/tool"
)

const defaultSystemPrompt = "You are a coding assistant with access to a live Go " +
	"interpreter session. Inspect the namespace with get_variables and " +
	"inspect_variable, and run Go snippets with execute_code. Variables " +
	"persist between executions."

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	var (
		storeKind    = fs.String("store", "memory", "conversation store: memory, file or sqlite")
		dataDir      = fs.String("data", "", "data directory for durable stores and input history")
		threadID     = fs.String("thread", "", "thread id to continue; a fresh id is generated when empty")
		systemPrompt = fs.String("system", defaultSystemPrompt, "system prompt")
		denyCode     = fs.String("deny-code", "", "comma-separated substrings that block code execution")
		escalateCode = fs.String("escalate-code", "", "comma-separated substrings that force an approval prompt")
		verbose      = fs.Bool("verbose", false, "log orchestrator state transitions to stderr")
		showVersion  = fs.Bool("version", false, "print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version.String())
		return nil
	}
	if _, err := envload.LoadNearest(); err != nil {
		return err
	}

	dir, err := resolveDataDir(*dataDir)
	if err != nil {
		return err
	}
	store, err := openStore(*storeKind, dir)
	if err != nil {
		return err
	}

	llm, err := providers.FromEnv()
	if err != nil {
		return err
	}

	h, err := yaegihost.New()
	if err != nil {
		return err
	}
	defer h.Close()

	coreTools, err := tool.EnsureCoreTools(nil, tool.CoreToolsConfig{Host: h})
	if err != nil {
		return err
	}
	registry, err := tool.NewRegistry(coreTools...)
	if err != nil {
		return err
	}

	var hooks []policy.Hook
	deny := splitPatterns(*denyCode)
	escalate := splitPatterns(*escalateCode)
	if len(deny) > 0 || len(escalate) > 0 {
		hooks = append(hooks, policy.GuardCode(policy.CodeGuardConfig{
			DenyPatterns:     deny,
			EscalatePatterns: escalate,
		}))
	}

	cfg := runtime.Config{
		Store:        store,
		Registry:     registry,
		Model:        llm,
		Policies:     hooks,
		SystemPrompt: *systemPrompt,
	}
	if *verbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		cfg.Logger = &logger
	}
	orch, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	editor, err := newLineEditor(lineEditorConfig{
		HistoryFile: filepath.Join(dir, "history"),
		Commands:    consoleCommands,
	})
	if err != nil {
		return err
	}
	defer editor.Close()

	return newConsole(orch, editor, *threadID).Run(ctx)
}

func resolveDataDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("console: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".kernelchat"), nil
}

func openStore(kind, dir string) (session.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory", "mem":
		return inmemory.New(), nil
	case "file":
		return filestore.New(filepath.Join(dir, "threads"))
	case "sqlite":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return sqlitestore.New(filepath.Join(dir, "threads.db"))
	default:
		return nil, fmt.Errorf("console: unknown store kind %q (memory, file or sqlite)", kind)
	}
}

func splitPatterns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
