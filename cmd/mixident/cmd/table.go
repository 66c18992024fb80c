package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/eternnoir/mixident/pkg/identify"
	"github.com/eternnoir/mixident/pkg/manifest"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if isatty.IsTerminal(os.Stdout.Fd()) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, columns)
	for i := range header {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

var outcomeHeaders = []string{"#", "Start", "Status", "Track", "Album", "Label", "BPM", "Confidence", "Sources"}

var outcomeAligns = []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

// outcomeRow flattens one outcome for the identify table
func outcomeRow(o *identify.Outcome) []string {
	row := []string{
		fmt.Sprintf("%d", o.Segment.Index+1),
		formatClock(o.Segment.Start),
		string(o.Status),
	}

	switch {
	case o.Record != nil:
		r := o.Record
		track := r.Key()
		if o.Status == identify.StatusSkipped {
			track = fmt.Sprintf("%s (%s)", track, o.Reason)
		}
		row = append(row,
			track,
			r.Album.Value,
			r.Label.Value,
			formatBPM(r.BPM.Value, r.BPM.Source),
			fmt.Sprintf("%.0f%%", r.Confidence*100),
			strings.Join(r.SourcesUsed, ", "),
		)
	case o.Status == identify.StatusUnidentified:
		bpm := ""
		if o.DetectedBPM != nil {
			bpm = formatBPM(o.DetectedBPM.BPM, identify.SourceLocal)
		}
		row = append(row, "", "", "", bpm, "", "")
	default:
		row = append(row, o.Reason, "", "", "", "", "")
	}
	return row
}

func outcomeRows(outcomes []*identify.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, outcomeRow(o))
	}
	return rows
}

var runHeaders = []string{"Run", "Started", "Mode", "Inputs", "Entries"}

func runRows(runs []manifest.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Mode,
			fmt.Sprintf("%d", len(r.Inputs)),
			fmt.Sprintf("%d", r.Entries),
		})
	}
	return rows
}

var entryHeaders = []string{"Source", "#", "Start", "Status", "Track", "Agreement", "Confidence"}

func entryRows(entries []manifest.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		track, agreement, confidence := e.Reason, "", ""
		if e.Record != nil {
			track = e.Record.Key()
			agreement = string(e.Record.Agreement)
			confidence = fmt.Sprintf("%.0f%%", e.Record.Confidence*100)
		}
		rows = append(rows, []string{
			e.SourcePath,
			fmt.Sprintf("%d", e.Index+1),
			formatClock(e.Start),
			string(e.Status),
			track,
			agreement,
			confidence,
		})
	}
	return rows
}

func formatBPM(value int, source string) string {
	if value <= 0 {
		return ""
	}
	if source == "" {
		return fmt.Sprintf("%d", value)
	}
	return fmt.Sprintf("%d (%s)", value, source)
}

// formatClock renders an offset as h:mm:ss or m:ss
func formatClock(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
