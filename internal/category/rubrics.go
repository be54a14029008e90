package category

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// 'id': '161' or "id": "161" inside a serialized rubric list.
	rubricIDField = regexp.MustCompile(`['"]id['"]\s*:\s*['"]?(\d+)`)
	bareNumber    = regexp.MustCompile(`\d+`)
)

// ParseRubricIDs extracts rubric ids from a serialized rubric column. It
// accepts a list of rubric objects (JSON or Python repr) as well as a plain
// id list such as "[161, 10803]".
func ParseRubricIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if matches := rubricIDField.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m[1])
		}
		return ids
	}

	if strings.Contains(raw, ":") {
		return nil
	}
	return bareNumber.FindAllString(raw, -1)
}

// AnnotateRubricIDs appends (or overwrites) rubric_ids and first_rubric_id
// columns computed from the rubrics column of a raw table. It returns the
// number of records that yielded at least one id.
func AnnotateRubricIDs(header []string, records [][]string) ([]string, [][]string, int, error) {
	src := indexOf(header, "rubrics")
	if src < 0 {
		return nil, nil, 0, eris.New("category: table has no rubrics column")
	}

	out := append([]string(nil), header...)
	idsCol := indexOf(out, "rubric_ids")
	if idsCol < 0 {
		idsCol = len(out)
		out = append(out, "rubric_ids")
	}
	firstCol := indexOf(out, "first_rubric_id")
	if firstCol < 0 {
		firstCol = len(out)
		out = append(out, "first_rubric_id")
	}

	withIDs := 0
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(out))
		copy(row, rec)

		var ids []string
		if src < len(rec) {
			ids = ParseRubricIDs(rec[src])
		}
		row[idsCol] = strings.Join(ids, ",")
		row[firstCol] = ""
		if len(ids) > 0 {
			row[firstCol] = ids[0]
			withIDs++
		}
		rows = append(rows, row)
	}
	return out, rows, withIDs, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}
