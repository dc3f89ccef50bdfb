package dispatcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"agentlink/internal/audit"
	"agentlink/internal/domain"
	"agentlink/internal/metrics"
)

// History returns recent audit entries. *audit.Store satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// ReplConfig configures the interactive loop.
type ReplConfig struct {
	Session *Session
	Metrics *metrics.Collector // enables /metrics
	History History            // enables /history
	In      io.Reader
	Out     io.Writer
	Logger  *slog.Logger
}

// Repl is a line-oriented shell over a Session.
type Repl struct {
	cfg    ReplConfig
	logger *slog.Logger
}

func NewRepl(cfg ReplConfig) *Repl {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Repl{cfg: cfg, logger: cfg.Logger}
}

const prompt = "agentlink> "

// Run blocks until EOF, /quit, a fatal agent error, or ctx cancellation.
func (r *Repl) Run(ctx context.Context) error {
	out := r.cfg.Out
	_, _ = fmt.Fprintln(out, "agentlink shell. Type @<agent> <command> or @<agent> {json}. Type /quit to exit.")
	_, _ = fmt.Fprint(out, prompt)

	scanner := bufio.NewScanner(r.cfg.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err() // nil on EOF
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit" || line == "/q":
			r.logger.Info("user requested quit")
			return nil
		case strings.HasPrefix(line, "/"):
			r.builtin(ctx, line)
		default:
			res, err := r.cfg.Session.Execute(ctx, line)
			switch {
			case err != nil && domain.IsFatal(err):
				_, _ = fmt.Fprintln(out, "fatal:", err)
				return err
			case err != nil:
				_, _ = fmt.Fprintln(out, "error:", err)
			default:
				_, _ = fmt.Fprintln(out, res.String())
			}
		}
		_, _ = fmt.Fprint(out, prompt)
	}
}

func (r *Repl) builtin(ctx context.Context, line string) {
	out := r.cfg.Out
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/agents":
		enabled := make(map[string]bool)
		for _, n := range r.cfg.Session.Enabled() {
			enabled[n] = true
		}
		for _, n := range r.cfg.Session.Available() {
			mark := " "
			if enabled[n] {
				mark = "*"
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", mark, n)
		}
	case "/enable", "/disable":
		if arg == "" {
			_, _ = fmt.Fprintf(out, "usage: %s <agent>\n", cmd)
			return
		}
		var err error
		if cmd == "/enable" {
			err = r.cfg.Session.Enable(ctx, arg)
		} else {
			err = r.cfg.Session.Disable(ctx, arg)
		}
		if err != nil {
			_, _ = fmt.Fprintln(out, "error:", err)
		}
	case "/metrics":
		if r.cfg.Metrics == nil {
			_, _ = fmt.Fprintln(out, "metrics are not enabled")
			return
		}
		_, _ = r.cfg.Metrics.WriteTo(out)
	case "/history":
		if r.cfg.History == nil {
			_, _ = fmt.Fprintln(out, "audit is not enabled")
			return
		}
		entries, err := r.cfg.History.Recent(ctx, 20)
		if err != nil {
			_, _ = fmt.Fprintln(out, "error:", err)
			return
		}
		for _, e := range entries {
			_, _ = fmt.Fprintf(out, "%s  %-8s %-7s %-28s %-5s %s\n",
				e.CreatedAt.Local().Format("15:04:05"), e.Agent, e.Kind, e.Name, e.Outcome, e.Duration)
		}
	default:
		_, _ = fmt.Fprintln(out, "unknown command:", cmd)
	}
}
