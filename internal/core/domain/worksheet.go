package domain

// Worksheet identifies one named tabular source within a spreadsheet.
type Worksheet struct {
	Title string
}

// RawTable is the untransformed grid read from one worksheet.
// The first row is the header; it may contain duplicate or empty names.
type RawTable struct {
	Rows [][]string
}

// Header returns the header row, or nil for an empty grid.
func (t RawTable) Header() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

// DataRows returns every row after the header.
func (t RawTable) DataRows() [][]string {
	if len(t.Rows) < 2 {
		return nil
	}
	return t.Rows[1:]
}

// ColumnIndex returns the position of the first header cell equal to name, or -1.
func (t RawTable) ColumnIndex(name string) int {
	for i, h := range t.Header() {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at column idx of row, or "" when the row is short.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
