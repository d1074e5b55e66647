package question

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// OptionDelimiter separates options when a record is flattened to one row.
// Stored rows are split on exactly this string when read back.
const OptionDelimiter = " | "

// JoinOptions renders options as a single storage string.
func JoinOptions(options []string) string {
	return strings.Join(options, OptionDelimiter)
}

// SplitOptions reverses JoinOptions. An empty string yields no options.
func SplitOptions(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, OptionDelimiter)
}

// Row is the flat, one-row-per-record form used for tabular storage.
type Row struct {
	Group   string `json:"group"`
	Number  int    `json:"question_number"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Options string `json:"options"`
}

// ToRow flattens a record.
func (r Record) ToRow() Row {
	return Row{
		Group:   r.Group.Label(),
		Number:  r.Number,
		Type:    string(r.Kind),
		Text:    r.Text,
		Options: JoinOptions(r.Options),
	}
}

// Record rebuilds a record from its row form.
func (row Row) Record() (Record, error) {
	g, err := ParseGroup(row.Group)
	if err != nil {
		return Record{}, err
	}
	rec := New(g, row.Number, row.Text, SplitOptions(row.Options))
	return rec, nil
}

var csvHeader = []string{"group", "question_number", "type", "text", "options"}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := r.ToRow()
		if err := cw.Write([]string{row.Group, strconv.Itoa(row.Number), row.Type, row.Text, row.Options}); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses output produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	lines, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	var records []Record
	for i, line := range lines[1:] {
		n, err := strconv.Atoi(line[1])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad question_number %q", i+2, line[1])
		}
		rec, err := Row{Group: line[0], Number: n, Type: line[2], Text: line[3], Options: line[4]}.Record()
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
