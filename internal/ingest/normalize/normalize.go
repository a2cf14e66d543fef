// Package normalize cleans one raw worksheet into canonical records.
package normalize

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

// Config names the columns and filter tokens used while cleaning.
type Config struct {
	NameColumn       string
	EmailColumn      string
	StatusColumn     string
	StatusToken      string
	ExcludeSubstring string
}

// DefaultConfig matches the newsletter sheets layout.
var DefaultConfig = Config{
	NameColumn:       "Name",
	EmailColumn:      "Email",
	StatusColumn:     "Status",
	StatusToken:      "Active",
	ExcludeSubstring: "support",
}

// Stats counts what each cleaning stage did to one worksheet.
type Stats struct {
	RowsRead          int
	DroppedByStatus   int
	DroppedByExclude  int
	NamesMissing      int
	NamesFilled       int
	DuplicatesRemoved int
	RowsKept          int
	StatusFiltered    bool
}

// Normalizer turns raw tables into record tables.
type Normalizer struct {
	cfg Config
	log *slog.Logger
}

// New creates a Normalizer.
func New(cfg Config, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{cfg: cfg, log: log.With("component", "normalize")}
}

// Required returns the columns a worksheet must have to be usable.
func (n *Normalizer) Required() []string {
	return []string{n.cfg.NameColumn, n.cfg.EmailColumn}
}

// MissingColumns returns the required columns absent from the table header.
func (n *Normalizer) MissingColumns(t domain.RawTable) []string {
	var missing []string
	for _, col := range n.Required() {
		if t.ColumnIndex(col) < 0 {
			missing = append(missing, col)
		}
	}
	return missing
}

// Normalize cleans one table. Surviving rows keep their original order and
// have unique emails.
func (n *Normalizer) Normalize(title string, t domain.RawTable) ([]domain.Record, Stats) {
	log := n.log.With("sheet", title)
	rows := t.DataRows()
	stats := Stats{RowsRead: len(rows)}
	log.Info("Initial rows in sheet", "rows", stats.RowsRead)

	if missing := n.MissingColumns(t); len(missing) > 0 {
		log.Error("Critical columns not found, skipping transformation", "missing", missing)
		return nil, stats
	}
	nameIdx := t.ColumnIndex(n.cfg.NameColumn)
	emailIdx := t.ColumnIndex(n.cfg.EmailColumn)

	if statusIdx := t.ColumnIndex(n.cfg.StatusColumn); statusIdx >= 0 {
		stats.StatusFiltered = true
		kept := rows[:0:0]
		for _, row := range rows {
			if ContainsToken(domain.Cell(row, statusIdx), n.cfg.StatusToken) {
				kept = append(kept, row)
			}
		}
		stats.DroppedByStatus = len(rows) - len(kept)
		rows = kept
		log.Info("Removed rows without active status",
			"removed", stats.DroppedByStatus, "token", n.cfg.StatusToken)
	} else {
		log.Info("Skipping status filter, column not found", "column", n.cfg.StatusColumn)
	}

	exclude := strings.ToLower(n.cfg.ExcludeSubstring)
	kept := rows[:0:0]
	for _, row := range rows {
		if exclude != "" && strings.Contains(strings.ToLower(domain.Cell(row, emailIdx)), exclude) {
			continue
		}
		kept = append(kept, row)
	}
	stats.DroppedByExclude = len(rows) - len(kept)
	rows = kept
	log.Info("Removed excluded emails", "removed", stats.DroppedByExclude, "substring", n.cfg.ExcludeSubstring)

	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		name := domain.Cell(row, nameIdx)
		email := domain.Cell(row, emailIdx)
		if IsBlank(name) {
			stats.NamesMissing++
			name = DeriveName(email)
			if name != "" {
				stats.NamesFilled++
			}
		}
		records = append(records, domain.Record{
			Name:  strings.TrimSpace(name),
			Email: strings.TrimSpace(email),
		})
	}
	if stats.NamesMissing > 0 {
		log.Info("Filled missing names from emails",
			"missing", stats.NamesMissing, "filled", stats.NamesFilled)
	} else {
		log.Info("No missing names to fill")
	}

	records, stats.DuplicatesRemoved = Dedupe(records)
	stats.RowsKept = len(records)
	log.Info("Removed duplicate emails", "removed", stats.DuplicatesRemoved)
	log.Info("Cleaned sheet", "rows", stats.RowsKept)

	return records, stats
}

// Dedupe keeps the first record for every email.
func Dedupe(records []domain.Record) ([]domain.Record, int) {
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Email]; ok {
			continue
		}
		seen[r.Email] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// IsBlank reports whether a cell carries no value: whitespace only, or the
// text an upstream export writes for a missing value.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "none", "nan", "null", "<na>":
		return true
	}
	return false
}

// ContainsToken reports whether token occurs in s as a whole word, ignoring
// case. "Active" matches "active", "ACTIVE - subscribed" but not "Inactive".
func ContainsToken(s, token string) bool {
	if token == "" {
		return true
	}
	s = strings.ToLower(s)
	token = strings.ToLower(token)

	for from := 0; from <= len(s)-len(token); {
		i := strings.Index(s[from:], token)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(token)

		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !isAlnum(before)) && (end == len(s) || !isAlnum(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

// DeriveName builds a display name from the local part of an email:
// separators become spaces, words are capitalized, and a trailing run of
// digits is dropped. "john.smith99@example.com" gives "John Smith".
func DeriveName(email string) string {
	if IsBlank(email) {
		return ""
	}
	local, _, _ := strings.Cut(email, "@")
	local = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-':
			return ' '
		}
		return r
	}, local)

	words := strings.Fields(local)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	name := stripTrailingDigits(strings.Join(words, " "))
	return strings.TrimSpace(name)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

// stripTrailingDigits removes the final run of digits that directly follows
// a word character. When the run starts a word, its first digit is kept.
func stripTrailingDigits(s string) string {
	start := len(s)
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if !unicode.IsDigit(r) {
			break
		}
		start -= size
	}
	if start == len(s) {
		return s
	}
	if before, _ := utf8.DecodeLastRuneInString(s[:start]); start == 0 || !isWord(before) {
		_, size := utf8.DecodeRuneInString(s[start:])
		start += size
	}
	return s[:start]
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isWord(r rune) bool {
	return isAlnum(r) || r == '_'
}
