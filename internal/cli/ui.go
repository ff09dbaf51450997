package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/osvaldoandrade/pkgmirror/internal/app/reconcile"
	"github.com/osvaldoandrade/pkgmirror/internal/domain"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[38;5;196m"
	ansiGreen   = "\x1b[38;5;82m"
	ansiYellow  = "\x1b[38;5;214m"
	ansiMagenta = "\x1b[38;5;201m"
	ansiCyan    = "\x1b[38;5;51m"
)

type renderer struct {
	color bool
}

func newRenderer(out io.Writer, asJSON bool) renderer {
	return renderer{color: colorEnabled(out, asJSON)}
}

func colorEnabled(out io.Writer, asJSON bool) bool {
	if asJSON {
		return false
	}
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	return isTerminal(out)
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	term := strings.TrimSpace(os.Getenv("TERM"))
	return term != "" && term != "dumb"
}

func (r renderer) wrap(code, value string) string {
	if !r.color || value == "" {
		return value
	}
	return code + value + ansiReset
}

func (r renderer) key(value string) string {
	return r.wrap(ansiBold+ansiCyan, value)
}

func (r renderer) ok(value string) string {
	return r.wrap(ansiBold+ansiGreen, value)
}

func (r renderer) warn(value string) string {
	return r.wrap(ansiBold+ansiYellow, value)
}

func (r renderer) err(value string) string {
	return r.wrap(ansiBold+ansiRed, value)
}

func (r renderer) accent(value string) string {
	return r.wrap(ansiBold+ansiMagenta, value)
}

func (r renderer) dim(value string) string {
	return r.wrap(ansiDim, value)
}

// consoleSink prints reconciliation progress for people watching a run.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
	ui  renderer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out, ui: newRenderer(out, false)}
}

func (c *consoleSink) Emit(_ context.Context, event reconcile.Event) {
	line := c.format(event)
	if line == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

func (c *consoleSink) format(event reconcile.Event) string {
	ui := c.ui
	switch event.Kind {
	case reconcile.EventPassStarted:
		mode := "check"
		if event.Repair {
			mode = "repair"
		}
		return ui.accent(fmt.Sprintf("== %s pass %d (%s)", event.Channel, event.Pass, mode))
	case reconcile.EventDrift:
		return ui.err("!!! ") + event.Drift().String()
	case reconcile.EventRepairStarted:
		return ui.dim(fmt.Sprintf(">>> %s %s/%s %s", event.Action, event.SubChannel, event.Name, event.Version))
	case reconcile.EventRepairFinished:
		if event.ExitCode != 0 {
			return ui.warn(fmt.Sprintf("<<< %s %s/%s exited %d", event.Action, event.SubChannel, event.Name, event.ExitCode))
		}
		return ""
	case reconcile.EventOrphanRemoved:
		return ui.warn("--- ") + fmt.Sprintf("removed %s/%s", event.SubChannel, event.Name)
	case reconcile.EventPassFinished:
		if event.Drifts == 0 {
			return ui.ok(fmt.Sprintf("== %s pass %d clean", event.Channel, event.Pass))
		}
		return ui.warn(fmt.Sprintf("== %s pass %d found %d drift(s)", event.Channel, event.Pass, event.Drifts))
	default:
		return ""
	}
}

func colorDrift(ui renderer, kind domain.DriftKind) string {
	switch kind {
	case domain.DriftMissing:
		return ui.err(string(kind))
	case domain.DriftMismatched:
		return ui.warn(string(kind))
	case domain.DriftOrphan:
		return ui.accent(string(kind))
	default:
		return ui.dim(string(kind))
	}
}

func colorStatus(ui renderer, status domain.RunStatus) string {
	switch status {
	case domain.RunConverged:
		return ui.ok(string(status))
	case domain.RunUnresolved:
		return ui.warn(string(status))
	case domain.RunFailed:
		return ui.err(string(status))
	default:
		return ui.dim(string(status))
	}
}
