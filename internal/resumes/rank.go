package resumes

import (
	"sort"
	"strconv"
)

// FormatVersion renders a 1-based rank as a display version.
func FormatVersion(rank int) string {
	return strconv.Itoa(rank) + ".0"
}

// rankVersions orders records by date, breaking ties by creation time and id,
// and returns the records whose stored version no longer matches their rank.
// The input slice is reordered in place and each element carries its new version.
func rankVersions(records []Version) []Version {
	sort.SliceStable(records, func(i, j int) bool {
		left, right := records[i], records[j]
		if !left.Date.Equal(right.Date) {
			return left.Date.Before(right.Date)
		}
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.Before(right.CreatedAt)
		}
		return left.ID < right.ID
	})

	changed := make([]Version, 0)
	for index := range records {
		want := FormatVersion(index + 1)
		if records[index].Version != want {
			records[index].Version = want
			changed = append(changed, records[index])
		}
	}
	return changed
}
