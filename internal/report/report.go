// Package report renders scan results and cache contents for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/community-finder/internal/cache"
	"github.com/JakeFAU/community-finder/internal/invite"
)

const none = "-"

// Row is one identifier with its display form.
type Row struct {
	Login   string   `json:"login"`
	Primary string   `json:"primary,omitempty"`
	Extra   int      `json:"extra"`
	Links   []string `json:"links"`
}

// Rows builds display rows in request order.
func Rows(ids []string, links map[string][]string) []Row {
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		raw := links[id]
		if raw == nil {
			raw = []string{}
		}
		row := Row{Login: id, Links: raw}
		if primary, extra, ok := invite.PickPrimary(raw); ok {
			row.Primary, row.Extra = primary, extra
		}
		rows = append(rows, row)
	}
	return rows
}

// Table writes a LOGIN | DISCORD table. With color the invite code is cyan.
func Table(w io.Writer, rows []Row, color bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"LOGIN", "DISCORD"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Login, discordCell(r, color)})
	}
	t.Render()
}

func discordCell(r Row, color bool) string {
	if r.Primary == "" {
		return none
	}
	cell := r.Primary
	if color {
		host, code, _ := strings.Cut(r.Primary, "/")
		cell = host + "/" + text.FgCyan.Sprint(code)
	}
	if r.Extra > 0 {
		cell += fmt.Sprintf(" (+%d)", r.Extra)
	}
	return cell
}

// Raw writes every raw candidate, one identifier per block.
func Raw(w io.Writer, rows []Row) error {
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s:\n", r.Login); err != nil {
			return fmt.Errorf("write raw output: %w", err)
		}
		if len(r.Links) == 0 {
			if _, err := fmt.Fprintf(w, "  %s\n", none); err != nil {
				return fmt.Errorf("write raw output: %w", err)
			}
			continue
		}
		for _, link := range r.Links {
			if _, err := fmt.Fprintf(w, "  %s\n", link); err != nil {
				return fmt.Errorf("write raw output: %w", err)
			}
		}
	}
	return nil
}

// JSON writes rows as an indented JSON array.
func JSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

// Cache writes a table of cached entries with their age and freshness.
func Cache(w io.Writer, entries []cache.Snapshot, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"LOGIN", "LINKS", "AGE", "STATUS"})
	for _, e := range entries {
		status := "fresh"
		if !e.Fresh {
			status = "expired"
		}
		links := none
		if len(e.Entry.Links) > 0 {
			links = strings.Join(e.Entry.Links, "\n")
		}
		age := now.Sub(e.Entry.CapturedAt).Truncate(time.Second)
		t.AppendRow(table.Row{e.ID, links, age.String(), status})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d entries", len(entries))})
	t.Render()
}
