package domain

// Queue is a FIFO of tracks waiting to be played.
// Insertion order is play order. The zero value is an empty queue.
type Queue struct {
	tracks []Track
}

// NewQueue creates a new empty Queue.
func NewQueue() Queue {
	return Queue{tracks: make([]Track, 0)}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Append adds tracks to the end of the queue, preserving their order.
func (q *Queue) Append(tracks ...Track) {
	q.tracks = append(q.tracks, tracks...)
}

// Peek returns the front track without removing it.
func (q *Queue) Peek() (Track, bool) {
	if q.IsEmpty() {
		return Track{}, false
	}
	return q.tracks[0], true
}

// Pop removes and returns the front track.
func (q *Queue) Pop() (Track, bool) {
	if q.IsEmpty() {
		return Track{}, false
	}
	track := q.tracks[0]
	q.tracks[0] = Track{}
	q.tracks = q.tracks[1:]
	return track, true
}

// List returns a copy of the queued tracks.
func (q *Queue) List() []Track {
	result := make([]Track, q.Len())
	copy(result, q.tracks)
	return result
}

// Clear removes all tracks.
func (q *Queue) Clear() {
	q.tracks = make([]Track, 0)
}
