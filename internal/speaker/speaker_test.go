package speaker_test

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/dialogue"
	"github.com/MrWong99/lorelens/internal/speaker"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
}

func testDB() *character.Database {
	return character.NewDatabase("Final Fantasy VII", []character.Record{
		{Name: "Cloud", LastName: "Strife", Role: character.RoleMain, Style: "terse"},
		{Name: "Tifa", LastName: "Lockhart", Role: character.RoleMain},
		{Name: "Barret", LastName: "Wallace", Role: character.RoleMain},
		{Name: "Aerith", LastName: "Gainsborough", Role: character.RoleMain, Aliases: []string{"Flower Girl"}},
	}, map[string]string{"C|oud Strife": "Cloud"}, nil)
}

// ─── State ──────────────────────────────────────────────────────────────────

func TestStateFIFOEviction(t *testing.T) {
	t.Parallel()
	s := speaker.NewState(speaker.WithCapacity(3))

	for _, n := range []string{"A1", "B2", "C3"} {
		s.Observe(n, dialogue.SpeakerProvisional)
	}
	s.Observe("D4", dialogue.SpeakerProvisional)

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if _, ok := s.Get("A1"); ok {
		t.Error("oldest entry A1 should have been evicted")
	}
	if want := []string{"D4", "C3", "B2"}; !slices.Equal(s.RecentNames(), want) {
		t.Errorf("RecentNames = %v, want %v", s.RecentNames(), want)
	}
}

func TestStateReobservationIsNotEvicted(t *testing.T) {
	t.Parallel()
	s := speaker.NewState(speaker.WithCapacity(3))

	s.Observe("A1", dialogue.SpeakerProvisional)
	s.Observe("B2", dialogue.SpeakerProvisional)
	s.Observe("C3", dialogue.SpeakerProvisional)
	s.Observe("a1", dialogue.SpeakerProvisional) // A1 is now the most recent
	s.Observe("D4", dialogue.SpeakerProvisional)

	if _, ok := s.Get("B2"); ok {
		t.Error("B2 should be the oldest and evicted")
	}
	e, ok := s.Get("A1")
	if !ok {
		t.Fatal("recently seen A1 must not be evicted")
	}
	if e.Count != 2 {
		t.Errorf("A1 Count = %d, want 2", e.Count)
	}
}

func TestStateCapacityProperty(t *testing.T) {
	t.Parallel()
	s := speaker.NewState()
	for i := range 50 {
		name := fmt.Sprintf("Speaker%02d", i)
		s.Observe(name, dialogue.SpeakerProvisional)
		if s.Len() > s.Capacity() {
			t.Fatalf("Len %d exceeds capacity %d", s.Len(), s.Capacity())
		}
		if got := s.RecentNames()[0]; got != name {
			t.Fatalf("most recent = %q, want %q", got, name)
		}
	}
	if s.Capacity() != 20 {
		t.Errorf("default capacity = %d, want 20", s.Capacity())
	}
	if _, ok := s.Get("Speaker29"); ok {
		t.Error("Speaker29 should have been evicted")
	}
	if _, ok := s.Get("Speaker30"); !ok {
		t.Error("Speaker30 should still be tracked")
	}
}

func TestStatePromotion(t *testing.T) {
	t.Parallel()
	clk := newClock()
	s := speaker.NewState(speaker.WithClock(clk.Now), speaker.WithPromotionMinAge(time.Minute))

	s.Observe("Zack", dialogue.SpeakerProvisional)
	s.Observe("Zack", dialogue.SpeakerProvisional)
	s.Observe("Zack", dialogue.SpeakerProvisional)
	if s.Pending() != 0 {
		t.Fatal("promotion before min age")
	}

	clk.Advance(2 * time.Minute)
	s.Observe("Zack", dialogue.SpeakerProvisional)
	s.Observe("Zack", dialogue.SpeakerProvisional)
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want exactly 1", s.Pending())
	}

	got := s.DrainPromotions()
	if len(got) != 1 || got[0].Name != "Zack" || got[0].Observations != 4 {
		t.Fatalf("DrainPromotions = %+v", got)
	}
	if c := got[0].Confidence(); c != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", c)
	}
	ln := got[0].LearnedName()
	if ln.Role != character.RoleLearned || ln.Observations != 4 {
		t.Errorf("LearnedName = %+v", ln)
	}

	s.Observe("Zack", dialogue.SpeakerProvisional)
	if s.Pending() != 0 {
		t.Error("a drained name must not be queued again")
	}

	s.Requeue(got...)
	if s.Pending() != 1 {
		t.Error("Requeue should restore the candidate")
	}
}

func TestStateKnownAndMysteryNeverPromoted(t *testing.T) {
	t.Parallel()
	s := speaker.NewState(speaker.WithPromotionMinAge(0))
	for range 5 {
		s.Observe("Cloud", dialogue.SpeakerKnown)
		s.Observe(dialogue.MysteryName, dialogue.SpeakerMystery)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", s.Pending())
	}
	if want := []string{"Cloud"}; !slices.Equal(s.RecentNames(), want) {
		t.Errorf("RecentNames = %v, want %v (mystery omitted)", s.RecentNames(), want)
	}
}

func TestStateClear(t *testing.T) {
	t.Parallel()
	s := speaker.NewState(speaker.WithPromotionThreshold(1), speaker.WithPromotionMinAge(0))
	s.Observe("Zack", dialogue.SpeakerProvisional)
	s.Clear()
	if s.Len() != 0 || s.Pending() != 0 || len(s.Entries()) != 0 {
		t.Fatal("Clear should forget everything")
	}
}

// ─── Resolver ───────────────────────────────────────────────────────────────

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate string
		wantKind  dialogue.SpeakerKind
		wantName  string
		wantMatch string
	}{
		{"exact", "Cloud", dialogue.SpeakerKnown, "Cloud", speaker.MatchExact},
		{"exact case insensitive", "TIFA", dialogue.SpeakerKnown, "Tifa", speaker.MatchExact},
		{"full name", "Cloud Strife", dialogue.SpeakerKnown, "Cloud", speaker.MatchExact},
		{"alias", "Flower Girl", dialogue.SpeakerKnown, "Aerith", speaker.MatchExact},
		{"fuzzy confusable", "C1oud", dialogue.SpeakerKnown, "Cloud", speaker.MatchFuzzy},
		{"fuzzy confusable in capitals", "CLOVD", dialogue.SpeakerKnown, "Cloud", speaker.MatchFuzzy},
		{"fuzzy confusable initial", "8arret", dialogue.SpeakerKnown, "Barret", speaker.MatchFuzzy},
		{"fuzzy apostrophe noise", "Ae'rith", dialogue.SpeakerKnown, "Aerith", speaker.MatchFuzzy},
		{"correction override", "C|oud Strife", dialogue.SpeakerKnown, "Cloud", speaker.MatchCorrection},
		{"repeated tokens", "Barret Barret", dialogue.SpeakerKnown, "Barret", speaker.MatchExact},
		{"unknown", "Sephiroth", dialogue.SpeakerProvisional, "Sephiroth", speaker.MatchNew},
		{"mystery sentinel", "222", dialogue.SpeakerMystery, dialogue.MysteryName, "sentinel"},
		{"mystery name", "???", dialogue.SpeakerMystery, dialogue.MysteryName, "sentinel"},
		{"empty", "  ", dialogue.SpeakerMystery, dialogue.MysteryName, "sentinel"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := speaker.NewResolver(testDB(), nil)
			got := r.Resolve(tc.candidate, speaker.NewState())
			if got.Kind != tc.wantKind || got.Name != tc.wantName || got.Match != tc.wantMatch {
				t.Errorf("Resolve(%q) = {%s %q %s}, want {%s %q %s}",
					tc.candidate, got.Kind, got.Name, got.Match, tc.wantKind, tc.wantName, tc.wantMatch)
			}
			if got.Kind == dialogue.SpeakerKnown && (got.Record == nil || got.Record.Name != tc.wantName) {
				t.Errorf("known speaker without matching record: %+v", got.Record)
			}
		})
	}
}

func TestResolveFuzzyThreshold(t *testing.T) {
	t.Parallel()
	r := speaker.NewResolver(testDB(), nil, speaker.WithFuzzyThreshold(0.99))
	got := r.Resolve("Ae'rith", speaker.NewState())
	if got.Kind != dialogue.SpeakerKnown {
		t.Fatalf("apostrophe-only difference should still score 1, got %+v", got)
	}
	got = r.Resolve("Barrxt", speaker.NewState())
	if got.Kind != dialogue.SpeakerProvisional {
		t.Fatalf("Barrxt at threshold 0.99 should be provisional, got %+v", got)
	}
}

func TestResolveProvisionalLifecycle(t *testing.T) {
	t.Parallel()
	clk := newClock()
	state := speaker.NewState(speaker.WithClock(clk.Now))
	r := speaker.NewResolver(testDB(), nil)

	first := r.Resolve("Sephiroth", state)
	if first.Match != speaker.MatchNew || first.Observations != 1 {
		t.Fatalf("first sighting: %+v", first)
	}

	clk.Advance(10 * time.Second)
	second := r.Resolve("sephiroth", state)
	if second.Match != speaker.MatchProvisional || second.Name != "Sephiroth" || second.Observations != 2 {
		t.Fatalf("second sighting: %+v", second)
	}

	clk.Advance(25 * time.Second)
	third := r.Resolve("Sephiroth", state)
	if third.Observations != 3 || third.LastSeen.Sub(third.FirstSeen) != 35*time.Second {
		t.Fatalf("third sighting: %+v", third)
	}

	promos := state.DrainPromotions()
	if len(promos) != 1 || promos[0].Name != "Sephiroth" {
		t.Fatalf("promotions = %+v, want Sephiroth", promos)
	}
}

func TestResolveRecentProvisional(t *testing.T) {
	t.Parallel()
	state := speaker.NewState()
	r := speaker.NewResolver(testDB(), nil)

	r.Resolve("Zack", state)
	got := r.Resolve("Zaek", state)
	if got.Kind != dialogue.SpeakerProvisional || got.Name != "Zack" || got.Match != speaker.MatchRecent {
		t.Fatalf("Resolve(Zaek) = %+v, want recent provisional Zack", got)
	}
	if got.Observations != 2 {
		t.Errorf("Observations = %d, want 2", got.Observations)
	}
}

func TestResolveCapitalisedConfusables(t *testing.T) {
	t.Parallel()
	db := character.NewDatabase("Skyrim", []character.Record{{Name: "Ulfric", LastName: "Stormcloak"}}, nil, nil)
	r := speaker.NewResolver(db, nil)

	for _, candidate := range []string{"vlfric", "Vlfric", "VLFRIC"} {
		got := r.Resolve(candidate, speaker.NewState())
		if got.Kind != dialogue.SpeakerKnown || got.Name != "Ulfric" {
			t.Errorf("Resolve(%q) = {%s %q %s}, want known Ulfric", candidate, got.Kind, got.Name, got.Match)
		}
	}
}

func TestResolveRecentKnownFloor(t *testing.T) {
	t.Parallel()
	db := character.NewDatabase("Hollow Bastion", []character.Record{{Name: "Mark"}, {Name: "Mary"}}, nil, nil)

	tests := []struct {
		name      string
		opts      []speaker.Option
		wantKind  dialogue.SpeakerKind
		wantName  string
		wantMatch string
	}{
		{"default floor keeps weak matches provisional", nil,
			dialogue.SpeakerProvisional, "Marx", speaker.MatchNew},
		{"lowered floor binds the recent name",
			[]speaker.Option{speaker.WithRecentKnownThreshold(0.65)},
			dialogue.SpeakerKnown, "Mark", speaker.MatchRecent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := speaker.NewResolver(db, nil, tt.opts...)
			state := speaker.NewState()
			r.Resolve("Mark", state)

			got := r.Resolve("Marx", state)
			if got.Kind != tt.wantKind || got.Name != tt.wantName || got.Match != tt.wantMatch {
				t.Errorf("Resolve(Marx) = {%s %q %s %.2f}, want {%s %q %s}",
					got.Kind, got.Name, got.Match, got.Score, tt.wantKind, tt.wantName, tt.wantMatch)
			}
		})
	}
}

func TestResolveUpdatesState(t *testing.T) {
	t.Parallel()
	state := speaker.NewState()
	r := speaker.NewResolver(testDB(), nil)

	r.Resolve("Cloud", state)
	r.Resolve("C1oud", state)
	r.Resolve("???", state)

	e, ok := state.Get("Cloud")
	if !ok || e.Count != 2 || e.Kind != dialogue.SpeakerKnown {
		t.Fatalf("Cloud entry = %+v, %v", e, ok)
	}
	if _, ok := state.Get(dialogue.MysteryName); !ok {
		t.Error("mystery sightings should be tracked")
	}
	if state.Pending() != 0 {
		t.Error("known and mystery speakers are never promoted")
	}
}

func TestResolveNilDatabase(t *testing.T) {
	t.Parallel()
	r := speaker.NewResolver(nil, nil)
	got := r.Resolve("Cloud", speaker.NewState())
	if got.Kind != dialogue.SpeakerProvisional {
		t.Fatalf("nil database: got %+v, want provisional", got)
	}
}
