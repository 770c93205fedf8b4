package main

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"formlo/internal/api"
)

// writeJSON encodes v as indented JSON, for the --json output mode.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formsTable renders the collection newest-first, the one tabular view
// this CLI has.
func formsTable(records []api.FormRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"FORM ID", "TITLE", "SOURCE", "QUESTIONS", "CREATED"})
	for _, record := range records {
		tw.AppendRow(table.Row{
			record.FormID,
			displayTitle(record),
			record.OriginalFilename,
			strconv.Itoa(record.QuestionsCount),
			record.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
