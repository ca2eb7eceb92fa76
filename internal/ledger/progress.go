package ledger

import (
	"sort"
	"time"
)

// DonationFact is one captured donation with the project context the badge
// rules look at.
type DonationFact struct {
	DonationID      uint
	DonorID         string
	AmountCents     int64
	ProjectID       *uint
	Country         string
	Allocations     []CategoryAmount
	CapturedAt      time.Time
	ProjectReleased int // percent of the project's milestones released
}

// DonorFacts is the aggregate a badge threshold is evaluated against.
type DonorFacts struct {
	DonorID           string
	TotalCents        int64
	DonationCount     int
	ProjectsSupported int
	Countries         int
	Categories        int
	CategoryCents     map[string]int64
	Referrals         int
	CompletedProjects int
	BestProjectPct    int
	FirstDonationAt   time.Time
}

// Summarize folds a donor's history. Facts for other donors are ignored.
func Summarize(donorID string, history []DonationFact, referrals int) DonorFacts {
	f := DonorFacts{DonorID: donorID, Referrals: referrals, CategoryCents: make(map[string]int64)}
	projects := make(map[uint]int)
	countries := make(map[string]struct{})
	for _, d := range history {
		if d.DonorID != donorID {
			continue
		}
		f.TotalCents += d.AmountCents
		f.DonationCount++
		if f.FirstDonationAt.IsZero() || d.CapturedAt.Before(f.FirstDonationAt) {
			f.FirstDonationAt = d.CapturedAt
		}
		if d.ProjectID != nil {
			projects[*d.ProjectID] = d.ProjectReleased
		}
		if d.Country != "" {
			countries[d.Country] = struct{}{}
		}
		for _, a := range d.Allocations {
			if a.AmountCents > 0 {
				f.CategoryCents[a.Category] += a.AmountCents
			}
		}
	}
	f.ProjectsSupported = len(projects)
	f.Countries = len(countries)
	f.Categories = len(f.CategoryCents)
	for _, pct := range projects {
		if pct >= 100 {
			f.CompletedProjects++
		}
		if pct > f.BestProjectPct {
			f.BestProjectPct = pct
		}
	}
	return f
}

// BadgeDefinition derives progress from facts. Progress is recomputed on
// every query; nothing records a badge as unlocked.
type BadgeDefinition struct {
	ID          string
	Name        string
	Description string
	Progress    func(DonorFacts) int
}

type BadgeProgress struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	Unlocked    bool   `json:"unlocked"`
}

func EvaluateBadges(f DonorFacts, defs []BadgeDefinition) []BadgeProgress {
	out := make([]BadgeProgress, 0, len(defs))
	for _, d := range defs {
		p := clampPct(d.Progress(f))
		out = append(out, BadgeProgress{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Progress:    p,
			Unlocked:    p >= 100,
		})
	}
	return out
}

// BadgeThresholds configures the default badge catalogue.
type BadgeThresholds struct {
	LifeSaverCategory          string `toml:"life_saver_category"`
	LifeSaverCents             int64  `toml:"life_saver_cents"`
	GlobalGuardianCountries    int    `toml:"global_guardian_countries"`
	HealthcareHeroCents        int64  `toml:"healthcare_hero_cents"`
	CommunityChampionReferrals int    `toml:"community_champion_referrals"`
}

func DefaultThresholds() BadgeThresholds {
	return BadgeThresholds{
		LifeSaverCategory:          "Medical Supplies",
		LifeSaverCents:             500_000,
		GlobalGuardianCountries:    5,
		HealthcareHeroCents:        1_000_000,
		CommunityChampionReferrals: 10,
	}
}

func DefaultBadges(t BadgeThresholds) []BadgeDefinition {
	return []BadgeDefinition{
		{
			ID:          "first-impact",
			Name:        "First Impact",
			Description: "Make your first donation",
			Progress:    func(f DonorFacts) int { return ratio(int64(f.DonationCount), 1) },
		},
		{
			ID:          "life-saver",
			Name:        "Life Saver",
			Description: "Fund medical supplies that save 100 lives",
			Progress:    func(f DonorFacts) int { return ratio(f.CategoryCents[t.LifeSaverCategory], t.LifeSaverCents) },
		},
		{
			ID:          "global-guardian",
			Name:        "Global Guardian",
			Description: "Support projects in different countries",
			Progress:    func(f DonorFacts) int { return ratio(int64(f.Countries), int64(t.GlobalGuardianCountries)) },
		},
		{
			ID:          "healthcare-hero",
			Name:        "Healthcare Hero",
			Description: "Reach the total donation milestone",
			Progress:    func(f DonorFacts) int { return ratio(f.TotalCents, t.HealthcareHeroCents) },
		},
		{
			ID:          "community-champion",
			Name:        "Community Champion",
			Description: "Inspire others to join the platform",
			Progress:    func(f DonorFacts) int { return ratio(int64(f.Referrals), int64(t.CommunityChampionReferrals)) },
		},
		{
			ID:          "impact-legend",
			Name:        "Impact Legend",
			Description: "Support a project from start to completion",
			Progress:    func(f DonorFacts) int { return f.BestProjectPct },
		},
	}
}

// ratio is n/d as a whole percentage, capped at 100. A non-positive target
// counts as met.
func ratio(n, d int64) int {
	if d <= 0 {
		return 100
	}
	if n >= d {
		return 100
	}
	if n <= 0 {
		return 0
	}
	return int(n * 100 / d)
}

func clampPct(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Standing is a donor's leaderboard position; Rank starts at 1.
type Standing struct {
	Rank            int       `json:"rank"`
	DonorID         string    `json:"donor_id"`
	TotalCents      int64     `json:"total_cents"`
	DonationCount   int       `json:"donation_count"`
	FirstDonationAt time.Time `json:"first_donation_at"`
}

// Leaderboard ranks every donor by captured total, highest first. Equal
// totals go to whoever donated first; identical first timestamps fall back
// to donor id so the order is total and repeatable.
func Leaderboard(history []DonationFact) []Standing {
	idx := make(map[string]int)
	var out []Standing
	for _, d := range history {
		i, ok := idx[d.DonorID]
		if !ok {
			i = len(out)
			idx[d.DonorID] = i
			out = append(out, Standing{DonorID: d.DonorID, FirstDonationAt: d.CapturedAt})
		}
		out[i].TotalCents += d.AmountCents
		out[i].DonationCount++
		if d.CapturedAt.Before(out[i].FirstDonationAt) {
			out[i].FirstDonationAt = d.CapturedAt
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalCents != b.TotalCents {
			return a.TotalCents > b.TotalCents
		}
		if !a.FirstDonationAt.Equal(b.FirstDonationAt) {
			return a.FirstDonationAt.Before(b.FirstDonationAt)
		}
		return a.DonorID < b.DonorID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// RankOf returns the donor's standing, or false if they have no captured donations.
func RankOf(board []Standing, donorID string) (Standing, bool) {
	for _, s := range board {
		if s.DonorID == donorID {
			return s, true
		}
	}
	return Standing{}, false
}
