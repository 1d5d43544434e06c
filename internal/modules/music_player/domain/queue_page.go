package domain

// DefaultPageSize is the number of queue entries shown per page.
const DefaultPageSize = 10

// QueuePage is one page of a queue snapshot.
type QueuePage struct {
	Page     int // 0-based, already clamped
	MaxPages int // at least 1, even for an empty queue
	Start    int // absolute index of Entries[0]
	Total    int
	Entries  []Track
}

// Paginate slices tracks into the requested page.
// Out-of-range pages are clamped to the nearest valid page.
func Paginate(tracks []Track, page, pageSize int) QueuePage {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	total := len(tracks)
	maxPages := max(1, (total+pageSize-1)/pageSize)
	page = min(max(page, 0), maxPages-1)

	start := page * pageSize
	end := min(start+pageSize, total)

	entries := make([]Track, end-start)
	copy(entries, tracks[start:end])

	return QueuePage{
		Page:     page,
		MaxPages: maxPages,
		Start:    start,
		Total:    total,
		Entries:  entries,
	}
}

// Position returns the 1-based absolute queue position of Entries[i].
func (p QueuePage) Position(i int) int {
	return p.Start + i + 1
}

// HasPrev reports whether an earlier page exists.
func (p QueuePage) HasPrev() bool {
	return p.Page > 0
}

// HasNext reports whether a later page exists.
func (p QueuePage) HasNext() bool {
	return p.Page < p.MaxPages-1
}
