package ledger

import (
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fact(donor string, amount int64, minute int) DonationFact {
	return DonationFact{DonorID: donor, AmountCents: amount, CapturedAt: t0.Add(time.Duration(minute) * time.Minute)}
}

func TestLeaderboard_TiesGoToFirstMover(t *testing.T) {
	history := []DonationFact{
		fact("carol", 500, 3),
		fact("alice", 300, 5),
		fact("bob", 500, 1),
		fact("alice", 200, 6),
		fact("dave", 100, 0),
	}
	board := Leaderboard(history)
	got := make([]string, len(board))
	for i, s := range board {
		got[i] = s.DonorID
		if s.Rank != i+1 {
			t.Fatalf("rank mismatch at %d: %+v", i, s)
		}
	}
	// bob, carol and alice all total 500; bob donated first, then carol, then alice.
	want := []string{"bob", "carol", "alice", "dave"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLeaderboard_StableUnderPermutation(t *testing.T) {
	var history []DonationFact
	donors := []string{"a", "b", "c", "d", "e", "f"}
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 60; i++ {
		// Few distinct amounts and shared timestamps force exact ties.
		history = append(history, fact(donors[rng.Intn(len(donors))], int64(100*(1+rng.Intn(3))), rng.Intn(4)))
	}
	want := Leaderboard(history)
	for i := 0; i < 50; i++ {
		perm := make([]DonationFact, len(history))
		copy(perm, history)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		if got := Leaderboard(perm); !reflect.DeepEqual(got, want) {
			t.Fatalf("leaderboard changed under permutation:\n%v\n%v", want, got)
		}
	}
}

func TestSummarizeAndBadges(t *testing.T) {
	p1, p2 := uint(1), uint(2)
	history := []DonationFact{
		{DonorID: "sarah", AmountCents: 600_000, ProjectID: &p1, Country: "KE", CapturedAt: t0,
			Allocations: []CategoryAmount{{"Medical Supplies", 240_000}, {"Infrastructure", 360_000}}},
		{DonorID: "sarah", AmountCents: 400_000, ProjectID: &p2, Country: "UG", CapturedAt: t0.Add(time.Hour), ProjectReleased: 100,
			Allocations: []CategoryAmount{{"Medical Supplies", 400_000}}},
		{DonorID: "other", AmountCents: 5, ProjectID: &p1, Country: "TZ", CapturedAt: t0},
	}
	f := Summarize("sarah", history, 3)
	if f.TotalCents != 1_000_000 || f.DonationCount != 2 || f.ProjectsSupported != 2 || f.Countries != 2 {
		t.Fatalf("unexpected facts %+v", f)
	}
	if f.CompletedProjects != 1 || f.BestProjectPct != 100 || !f.FirstDonationAt.Equal(t0) {
		t.Fatalf("unexpected completion facts %+v", f)
	}

	badges := EvaluateBadges(f, DefaultBadges(DefaultThresholds()))
	got := make(map[string]BadgeProgress, len(badges))
	for _, b := range badges {
		got[b.ID] = b
	}
	expect := map[string]int{
		"first-impact":       100,
		"life-saver":         100,
		"global-guardian":    40,
		"healthcare-hero":    100,
		"community-champion": 30,
		"impact-legend":      100,
	}
	for id, pct := range expect {
		b, ok := got[id]
		if !ok {
			t.Fatalf("missing badge %s", id)
		}
		if b.Progress != pct || b.Unlocked != (pct >= 100) {
			t.Fatalf("badge %s: expected %d, got %+v", id, pct, b)
		}
	}
}

func TestBadges_NoHistoryIsZeroProgress(t *testing.T) {
	f := Summarize("nobody", nil, 0)
	for _, b := range EvaluateBadges(f, DefaultBadges(DefaultThresholds())) {
		if b.Progress != 0 || b.Unlocked {
			t.Fatalf("badge %s should be locked at 0, got %+v", b.ID, b)
		}
	}
}

func TestEvaluateBadges_ClampsProgress(t *testing.T) {
	defs := []BadgeDefinition{
		{ID: "over", Progress: func(DonorFacts) int { return 250 }},
		{ID: "under", Progress: func(DonorFacts) int { return -4 }},
	}
	out := EvaluateBadges(DonorFacts{}, defs)
	if out[0].Progress != 100 || !out[0].Unlocked || out[1].Progress != 0 || out[1].Unlocked {
		t.Fatalf("unexpected clamping %+v", out)
	}
}
