package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/ChrisB0-2/purge/internal/core"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printer renders reports for humans. Colour is used only on a terminal
// and never when NO_COLOR is set.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, color: isTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

const (
	ansiReset   = "\033[0m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiRed     = "\033[31m"
	ansiMagenta = "\033[35m"
)

func (p *printer) tier(t core.SafetyTier) string {
	if !p.color {
		return string(t)
	}
	c := ""
	switch t {
	case core.SafetySafe:
		c = ansiGreen
	case core.SafetyWarning:
		c = ansiYellow
	case core.SafetyDangerous:
		c = ansiRed
	case core.SafetyCritical:
		c = ansiMagenta
	default:
		return string(t)
	}
	return c + string(t) + ansiReset
}

func bytesStr(n int64) string {
	return humanize.Bytes(uint64(max(n, 0)))
}

type categoryTotal struct {
	cat   core.Category
	count int
	size  int64
}

// categoryTotals orders categories by reclaimable size, largest first.
func categoryTotals(r *core.ScanReport) []categoryTotal {
	var out []categoryTotal
	for cat, items := range r.ByCategory() {
		t := categoryTotal{cat: cat, count: len(items)}
		for _, it := range items {
			t.size += it.Size
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].size != out[j].size {
			return out[i].size > out[j].size
		}
		return out[i].cat < out[j].cat
	})
	return out
}

func (p *printer) scanReport(r core.ScanReport, listItems bool) {
	status := ""
	if r.Canceled {
		status = " (canceled)"
	}
	fmt.Fprintf(p.w, "Scan %s on %s%s: %s items, %s reclaimable in %.1fs\n",
		r.ID, r.Platform, status, humanize.Comma(int64(r.TotalFound)), r.HumanTotalSize(),
		durationSeconds(r.Duration))

	if r.TotalFound > 0 {
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		for _, t := range categoryTotals(&r) {
			fmt.Fprintf(tw, "  %s\t%s items\t%s\n", t.cat, humanize.Comma(int64(t.count)), bytesStr(t.size))
		}
		_ = tw.Flush()
	}

	if listItems && len(r.Items) > 0 {
		fmt.Fprintln(p.w)
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		for _, it := range r.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", p.tier(it.Safety), it.HumanSize(), it.ScannerName(), it.Path)
		}
		_ = tw.Flush()
	}

	p.errors(r.Errors)
}

func (p *printer) cleanupReport(r core.CleanupReport) {
	verb := "Removed"
	if r.DryRun {
		verb = "Would remove"
	}
	fmt.Fprintf(p.w, "%s %s items, %s freed in %.1fs\n",
		verb, humanize.Comma(int64(r.TotalRemoved)), r.HumanFreed(), durationSeconds(r.Duration))

	if len(r.Failed) > 0 {
		fmt.Fprintf(p.w, "Failed (%d):\n", len(r.Failed))
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		for _, f := range r.Failed {
			reason := f.Reason
			if f.ProcessLocked {
				reason += " (in use)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Scanner, reason, f.Path)
		}
		_ = tw.Flush()
	}

	p.errors(r.Errors)
}

func (p *printer) errors(errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(p.w, "Errors:")
	for _, e := range errs {
		fmt.Fprintf(p.w, "  - %s\n", e)
	}
}

func (p *printer) scanners(infos []core.ScannerInfo) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tENABLED\tSUPPORTED\tPLATFORMS\tDESCRIPTION")
	for _, s := range infos {
		plats := make([]string, len(s.Platforms))
		for i, pl := range s.Platforms {
			plats[i] = string(pl)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Category, yesNo(s.Enabled), yesNo(s.Supported), strings.Join(plats, ","), s.Description)
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func durationSeconds(s core.Seconds) float64 {
	return time.Duration(s).Seconds()
}
