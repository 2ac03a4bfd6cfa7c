// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pdiddy/rdm-harvest/internal/harvest"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// formatResult renders one DOI outcome as a result line.
func formatResult(res types.DOIResult) string {
	switch res.Outcome {
	case types.OutcomeWritten:
		return fmt.Sprintf("doi=%s record=%s", res.DOI, res.RecordID)
	case types.OutcomeSkipped:
		return fmt.Sprintf("doi=%s skipped %s", res.DOI, res.Detail)
	default:
		return fmt.Sprintf("error=%s %s", res.DOI, res.Detail)
	}
}

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
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderSummary tabulates a batch.
func renderSummary(r harvest.BatchResult) string {
	status := "complete"
	if r.Aborted {
		status = "aborted"
	}
	rows := [][]string{
		{"written", strconv.Itoa(r.Written)},
		{"skipped", strconv.Itoa(r.Skipped)},
		{"failed", strconv.Itoa(r.Failed)},
		{"total", strconv.Itoa(r.Total())},
	}
	out := renderTable([]string{"Outcome", "DOIs"}, rows, []columnAlignment{alignLeft, alignRight})
	return fmt.Sprintf("Run %s %s\n%s", r.RunID, status, out)
}
