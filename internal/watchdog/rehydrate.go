package watchdog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/swell-sh/swell/internal/registry"
)

// Entry is one record in a digest, with its elapsed runtime precomputed.
type Entry struct {
	Key     string
	Record  registry.ProcessRecord
	Elapsed time.Duration
}

// Digest is a situational summary derived exclusively from a loaded registry
// document — no dependence on any process's memory. It is the mechanism by
// which an orchestrator that lost its working context regains awareness of
// what is running, what finished, and what died.
type Digest struct {
	GeneratedAt time.Time
	Running     []Entry
	Completed   []Entry
	Failed      []Entry
}

// BuildDigest classifies every record in the document into exactly one
// status group, each sorted by key.
func BuildDigest(doc *registry.Document, now time.Time) *Digest {
	d := &Digest{GeneratedAt: now}

	for key, rec := range doc.Tasks {
		e := Entry{Key: key, Record: rec, Elapsed: rec.Elapsed(now)}
		switch rec.Status {
		case registry.StatusRunning:
			d.Running = append(d.Running, e)
		case registry.StatusCompleted:
			d.Completed = append(d.Completed, e)
		case registry.StatusFailed:
			d.Failed = append(d.Failed, e)
		}
	}

	for _, group := range [][]Entry{d.Running, d.Completed, d.Failed} {
		sort.Slice(group, func(i, j int) bool { return group[i].Key < group[j].Key })
	}
	return d
}

// Total returns the number of records across all groups.
func (d *Digest) Total() int {
	return len(d.Running) + len(d.Completed) + len(d.Failed)
}

// ----- Rendering -----

var (
	digestTitleStyle = lipgloss.NewStyle().Bold(true)

	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Render formats the digest for a terminal.
func (d *Digest) Render() string {
	var b strings.Builder

	b.WriteString(digestTitleStyle.Render("Process registry"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d task(s)", d.Total())))
	b.WriteString("\n")

	renderGroup(&b, runningStyle.Render("running"), d.Running)
	renderGroup(&b, completedStyle.Render("completed"), d.Completed)
	renderGroup(&b, failedStyle.Render("failed"), d.Failed)

	if d.Total() == 0 {
		b.WriteString(dimStyle.Render("  registry is empty\n"))
	}
	return b.String()
}

func renderGroup(b *strings.Builder, label string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d)\n", label, len(entries))
	for _, e := range entries {
		detail := describeMode(e.Record)
		fmt.Fprintf(b, "  %-24s %s %s\n",
			e.Key,
			dimStyle.Render(formatElapsed(e.Elapsed)),
			dimStyle.Render(detail),
		)
	}
}

func describeMode(rec registry.ProcessRecord) string {
	switch rec.Mode {
	case registry.ModeNative:
		return fmt.Sprintf("pid %d", rec.Native.PID)
	case registry.ModeContainer:
		id := rec.Container.ID
		if len(id) > 12 {
			id = id[:12]
		}
		return "container " + id
	}
	return string(rec.Mode)
}

// formatElapsed renders a duration the way humans scan it: 45s, 12m3s, 2h5m.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
