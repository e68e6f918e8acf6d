package google

import (
	"fmt"
	"strconv"
	"strings"
)

// rowLocation is where a site lives in the mirror sheet.
type rowLocation struct {
	row      int // 1-based sheet row
	revision int64
}

// indexRows maps site ids in column A to their sheet rows. values starts at
// row 1; the header row and blank rows are skipped.
func indexRows(values [][]interface{}) map[string]rowLocation {
	out := make(map[string]rowLocation, len(values))
	for i, raw := range values {
		cols := toStrings(raw)
		id := safeGet(cols, 0)
		if id == "" || (i == 0 && strings.EqualFold(id, "site id")) {
			continue
		}
		rev, _ := strconv.ParseInt(safeGet(cols, revisionColumn), 10, 64)
		out[id] = rowLocation{row: i + 1, revision: rev}
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// columnLetter converts a zero-based column index to A1 notation.
func columnLetter(idx int) string {
	s := ""
	for idx >= 0 {
		s = string(rune('A'+idx%26)) + s
		idx = idx/26 - 1
	}
	return s
}
