package speaker

import (
	"slices"
	"time"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/dialogue"
)

const (
	defaultCapacity           = 20
	defaultPromotionThreshold = 3
	defaultPromotionMinAge    = 30 * time.Second
)

// Entry is the per-session record of one observed speaker.
type Entry struct {
	Name      string               `json:"name"`
	Kind      dialogue.SpeakerKind `json:"kind"`
	FirstSeen time.Time            `json:"first_seen"`
	LastSeen  time.Time            `json:"last_seen"`
	Count     int                  `json:"count"`
}

// Candidate is a provisional speaker that has been seen often enough and
// long enough to be worth persisting as a learned name.
type Candidate struct {
	Name         string    `json:"name"`
	Observations int       `json:"observations"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// Confidence grows with the number of observations: n/(n+1).
func (c Candidate) Confidence() float64 {
	return float64(c.Observations) / float64(c.Observations+1)
}

// LearnedName converts c into the form accepted by a learned-names store.
func (c Candidate) LearnedName() character.LearnedName {
	return character.LearnedName{
		Name:         c.Name,
		Role:         character.RoleLearned,
		Confidence:   c.Confidence(),
		Observations: c.Observations,
		PromotedAt:   c.LastSeen,
	}
}

// StateOption configures a [State].
type StateOption func(*State)

// WithCapacity sets how many speakers are tracked before the oldest is
// evicted. Values below 1 are ignored. Default: 20.
func WithCapacity(n int) StateOption {
	return func(s *State) {
		if n >= 1 {
			s.capacity = n
		}
	}
}

// WithPromotionThreshold sets how many observations a provisional speaker
// needs before it becomes a promotion candidate. Default: 3.
func WithPromotionThreshold(n int) StateOption {
	return func(s *State) {
		if n >= 1 {
			s.threshold = n
		}
	}
}

// WithPromotionMinAge sets how long a provisional speaker must have been
// known before it can be promoted. Default: 30s.
func WithPromotionMinAge(d time.Duration) StateOption {
	return func(s *State) {
		if d >= 0 {
			s.minAge = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) StateOption {
	return func(s *State) {
		s.now = now
	}
}

// State is the per-session speaker memory: a fixed-capacity FIFO of
// recently seen speakers with first/last-seen times and occurrence counts.
//
// Observing a speaker that is already tracked moves it to the most recent
// end, so the speaker seen last is never the one evicted. Evicting a
// provisional speaker forgets it entirely.
//
// State is not safe for concurrent use; the owning session serialises
// access.
type State struct {
	capacity  int
	threshold int
	minAge    time.Duration
	now       func() time.Time

	order   []string // fold keys, oldest first
	entries map[string]*Entry

	queued  map[string]struct{}
	pending []Candidate
}

// NewState creates an empty [State].
func NewState(opts ...StateOption) *State {
	s := &State{
		capacity:  defaultCapacity,
		threshold: defaultPromotionThreshold,
		minAge:    defaultPromotionMinAge,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.reset()
	return s
}

func (s *State) reset() {
	s.order = make([]string, 0, s.capacity)
	s.entries = make(map[string]*Entry, s.capacity)
	s.queued = make(map[string]struct{})
	s.pending = nil
}

// Observe records one sighting of name and returns the updated entry. A
// provisional speaker that reaches the promotion threshold and minimum age
// is queued as a [Candidate] exactly once per session.
func (s *State) Observe(name string, kind dialogue.SpeakerKind) Entry {
	key := character.Fold(name)
	now := s.now()

	e, ok := s.entries[key]
	if ok {
		e.Count++
		e.LastSeen = now
		e.Kind = kind
		e.Name = name
		s.touch(key)
	} else {
		if len(s.order) >= s.capacity {
			s.evictOldest()
		}
		e = &Entry{Name: name, Kind: kind, FirstSeen: now, LastSeen: now, Count: 1}
		s.entries[key] = e
		s.order = append(s.order, key)
	}

	if kind == dialogue.SpeakerProvisional && e.Count >= s.threshold && e.LastSeen.Sub(e.FirstSeen) >= s.minAge {
		if _, done := s.queued[key]; !done {
			s.queued[key] = struct{}{}
			s.pending = append(s.pending, Candidate{
				Name:         e.Name,
				Observations: e.Count,
				FirstSeen:    e.FirstSeen,
				LastSeen:     e.LastSeen,
			})
		}
	}
	return *e
}

// touch moves key to the most recent end of the FIFO.
func (s *State) touch(key string) {
	if i := slices.Index(s.order, key); i >= 0 {
		s.order = append(slices.Delete(s.order, i, i+1), key)
	}
}

func (s *State) evictOldest() {
	oldest := s.order[0]
	s.order = slices.Delete(s.order, 0, 1)
	delete(s.entries, oldest)
}

// Get returns the entry for name, if tracked.
func (s *State) Get(name string) (Entry, bool) {
	e, ok := s.entries[character.Fold(name)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of tracked speakers.
func (s *State) Len() int { return len(s.order) }

// Capacity returns the maximum number of tracked speakers.
func (s *State) Capacity() int { return s.capacity }

// RecentNames returns the tracked known and provisional speaker names,
// most recently seen first. The mystery speaker is omitted.
func (s *State) RecentNames() []string {
	out := make([]string, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.entries[s.order[i]]
		if e.Kind == dialogue.SpeakerMystery {
			continue
		}
		out = append(out, e.Name)
	}
	return out
}

// Entries returns copies of all tracked entries, oldest first.
func (s *State) Entries() []Entry {
	out := make([]Entry, len(s.order))
	for i, k := range s.order {
		out[i] = *s.entries[k]
	}
	return out
}

// Pending returns the number of queued promotion candidates.
func (s *State) Pending() int { return len(s.pending) }

// DrainPromotions returns the queued promotion candidates and empties the
// queue. A drained name is not queued again in this session.
func (s *State) DrainPromotions() []Candidate {
	out := s.pending
	s.pending = nil
	return out
}

// Requeue puts candidates back at the front of the queue, typically after a
// failed write to the learned-names store or when a session rebuilds its
// state. A requeued name is not queued again by [State.Observe].
func (s *State) Requeue(cs ...Candidate) {
	for _, c := range cs {
		s.queued[character.Fold(c.Name)] = struct{}{}
	}
	s.pending = append(slices.Clone(cs), s.pending...)
}

// Clear forgets all speakers and pending promotions.
func (s *State) Clear() {
	s.reset()
}
