// Package merge combines per-worksheet record tables.
package merge

import "github.com/vietddude/sheetmerge/internal/core/domain"

// Merge concatenates tables in the given order and keeps the first record
// seen for every email. It returns the combined table and the number of
// records dropped as duplicates.
func Merge(tables ...[]domain.Record) ([]domain.Record, int) {
	total := 0
	for _, t := range tables {
		total += len(t)
	}

	seen := make(map[string]struct{}, total)
	out := make([]domain.Record, 0, total)
	for _, t := range tables {
		for _, r := range t {
			if _, ok := seen[r.Email]; ok {
				continue
			}
			seen[r.Email] = struct{}{}
			out = append(out, r)
		}
	}
	return out, total - len(out)
}
