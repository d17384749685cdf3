package bing

import "sort"

// ImageRecord is one day's entry from the image archive feed as the
// feed serves it: the compact start date plus the image URLs and the
// caption. Records are immutable once fetched, and identified by
// their start date.
type ImageRecord struct {
	StartDate     string `json:"startdate"`
	URL           string `json:"url"`
	URLBase       string `json:"urlbase"`
	Copyright     string `json:"copyright"`
	CopyrightLink string `json:"copyrightlink"`
}

// Date parses the record's compact start date.
func (r ImageRecord) Date() (Date, error) {
	return ParseCompact(r.StartDate)
}

// SortRecords orders records ascending by their compact start date.
// Records with a malformed start date sort first; callers that care
// reject them before sorting.
func SortRecords(records []ImageRecord) {
	sort.Slice(records, func(i, j int) bool {
		di, _ := ParseCompact(records[i].StartDate)
		dj, _ := ParseCompact(records[j].StartDate)
		return di.Compact() < dj.Compact()
	})
}
