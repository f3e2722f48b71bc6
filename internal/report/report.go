// Package report renders an evaluation into a bounded chat message.
package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/rewired-gh/marketpulse/internal/monitor"
	"github.com/rewired-gh/marketpulse/internal/telegram"
	"github.com/shopspring/decimal"
)

const (
	glyphUp     = "📈"
	glyphDown   = "📉"
	glyphAbsent = "➖"

	// DigestLimit bounds the digest handed to the narrative generator.
	DigestLimit = 1000

	firstRunNotice = "First collection, no change data yet."
)

// Options controls message layout and size.
type Options struct {
	Title          string
	MaxLength      int
	NarrativeLimit int
	MarkdownV2     bool
}

// DefaultOptions returns the layout used for Telegram delivery.
func DefaultOptions() Options {
	return Options{
		Title:          "Market Pulse",
		MaxLength:      3800,
		NarrativeLimit: 500,
		MarkdownV2:     true,
	}
}

type formatter struct {
	md bool
}

func (f formatter) text(s string) string {
	if f.md {
		return telegram.EscapeMarkdownV2(s)
	}
	return s
}

func (f formatter) heading(s string) string {
	if f.md {
		return "*" + telegram.EscapeMarkdownV2(s) + "*"
	}
	return s
}

// Build renders ev and an optional narrative. The result never exceeds
// opts.MaxLength runes, and the narrative is either kept whole, cut at a
// sentence end, or left out.
func Build(ev monitor.Evaluation, narrative string, opts Options) string {
	opts = withDefaults(opts)
	f := formatter{md: opts.MarkdownV2}

	var b strings.Builder
	b.WriteString("📊 " + f.heading(opts.Title) + " " + f.text(ev.Date.Format(models.DateLayout)) + "\n")

	// a first run has no changes, so only the VIX level would score; no label
	if ev.FirstRun {
		b.WriteString("\n" + f.text(firstRunNotice) + "\n")
		for _, r := range ev.Core {
			b.WriteString(f.text(fmt.Sprintf("• %s %s", r.Asset, formatClose(r.Close))) + "\n")
		}
	} else {
		b.WriteString(f.text(fmt.Sprintf("Risk: %s (%+d)", ev.Label, ev.Score)) + "\n")
		b.WriteString("\n" + f.heading("Key indicators") + "\n")
		for _, r := range ev.Core {
			b.WriteString(line(f, r) + "\n")
		}

		b.WriteString("\n" + f.heading("All assets") + "\n")
		for _, g := range groupRows(ev.Rows) {
			b.WriteString(f.text("["+g.name+"]") + "\n")
			for _, r := range g.rows {
				b.WriteString(line(f, r) + "\n")
			}
		}
	}

	body := b.String()
	if utf8.RuneCountInString(body) > opts.MaxLength {
		return Truncate(body, opts.MaxLength)
	}

	narrative = strings.TrimSpace(narrative)
	if narrative == "" {
		return strings.TrimRight(body, "\n")
	}

	section := func(text string) string {
		return "\n" + f.heading("Commentary") + "\n" + f.text(text)
	}
	budget := opts.MaxLength - utf8.RuneCountInString(body)
	if s := section(narrative); utf8.RuneCountInString(s) <= budget {
		return body + s
	}
	if cut := TruncateNarrative(narrative, opts.NarrativeLimit); cut != "" {
		if s := section(cut); utf8.RuneCountInString(s) <= budget {
			return body + s
		}
	}
	return strings.TrimRight(body, "\n")
}

// Digest renders the core assets and the score as plain text for the
// narrative generator.
func Digest(ev monitor.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", ev.Date.Format(models.DateLayout))
	for _, r := range ev.Core {
		fmt.Fprintf(&b, "%s: close %s, change %s\n", r.Asset, formatClose(r.Close), formatChange(r.ChangePct))
	}
	if ev.FirstRun {
		b.WriteString("No prior snapshot, changes and risk score unavailable.")
	} else {
		fmt.Fprintf(&b, "Risk score: %+d (%s)", ev.Score, ev.Label)
	}
	return truncateRunes(b.String(), DigestLimit)
}

// TruncateNarrative returns text up to its last complete sentence within the
// first limit runes. A sentence ends at '.', '!' or '?' followed by
// whitespace or the end of text. It returns "" when no sentence ends inside
// the window.
func TruncateNarrative(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if limit <= 0 {
		return ""
	}
	end := -1
	for i := 0; i < len(runes) && i < limit; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				end = i + 1
			}
		}
	}
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(string(runes[:end]))
}

// Truncate caps msg at limit runes, cutting at the last newline inside the
// ceiling when there is one.
func Truncate(msg string, limit int) string {
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	cut := truncateRunes(msg, limit)
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, "\n")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Title == "" {
		opts.Title = def.Title
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = def.MaxLength
	}
	if opts.NarrativeLimit <= 0 {
		opts.NarrativeLimit = def.NarrativeLimit
	}
	return opts
}

func line(f formatter, r models.DiffRow) string {
	s := fmt.Sprintf("%s %s", r.Asset, formatClose(r.Close))
	if r.ChangePct.Valid {
		s += " (" + formatChange(r.ChangePct) + ")"
	}
	return glyph(r.ChangePct) + " " + f.text(s)
}

func glyph(change decimal.NullDecimal) string {
	switch {
	case !change.Valid:
		return glyphAbsent
	case change.Decimal.IsNegative():
		return glyphDown
	default:
		return glyphUp
	}
}

func formatClose(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	if d.Decimal.Abs().LessThan(decimal.NewFromInt(10)) {
		return d.Decimal.StringFixed(4)
	}
	return d.Decimal.StringFixed(2)
}

func formatChange(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	s := d.Decimal.StringFixed(2)
	if !d.Decimal.IsNegative() {
		s = "+" + s
	}
	return s + "%"
}

type group struct {
	name string
	rows []models.DiffRow
}

// groupRows groups rows by Group in first-seen order and sorts each group by
// change descending with absent changes last.
func groupRows(rows []models.DiffRow) []group {
	var groups []group
	index := map[string]int{}
	for _, r := range rows {
		i, ok := index[r.Group]
		if !ok {
			i = len(groups)
			index[r.Group] = i
			groups = append(groups, group{name: r.Group})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	for _, g := range groups {
		sort.SliceStable(g.rows, func(i, j int) bool {
			a, b := g.rows[i].ChangePct, g.rows[j].ChangePct
			if a.Valid != b.Valid {
				return a.Valid
			}
			return a.Valid && a.Decimal.GreaterThan(b.Decimal)
		})
	}
	return groups
}
