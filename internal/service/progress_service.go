package service

import (
	"context"
	"strings"

	"fundledger/internal/domain"
	"fundledger/internal/ledger"
	"fundledger/internal/repository"
)

// ProgressService derives badges and rankings from captured donations. Nothing
// it returns is stored; every call folds the current history.
type ProgressService struct {
	ledgerRepo   *repository.LedgerRepository
	referralRepo *repository.ReferralRepository
	badges       []ledger.BadgeDefinition
}

func NewProgressService(ledgerRepo *repository.LedgerRepository, referralRepo *repository.ReferralRepository, badges []ledger.BadgeDefinition) *ProgressService {
	return &ProgressService{ledgerRepo: ledgerRepo, referralRepo: referralRepo, badges: badges}
}

type DonorProgress struct {
	DonorID           string                 `json:"donor_id"`
	Rank              int                    `json:"rank"`
	TotalCents        int64                  `json:"total_cents"`
	DonationCount     int                    `json:"donation_count"`
	ProjectsSupported int                    `json:"projects_supported"`
	Countries         int                    `json:"countries"`
	Referrals         int                    `json:"referrals"`
	Badges            []ledger.BadgeProgress `json:"badges"`
	UnlockedCount     int                    `json:"unlocked_count"`
}

type LeaderboardRow struct {
	ledger.Standing
	BadgeCount int `json:"badge_count"`
}

// GetDonorProgress returns badge progress and leaderboard rank for donorID.
// A donor with no captured donation is NotFound.
func (s *ProgressService) GetDonorProgress(ctx context.Context, donorID string) (*DonorProgress, error) {
	donorID = strings.TrimSpace(donorID)
	if donorID == "" {
		return nil, domain.Invalid("donor_id", "required")
	}
	history, err := s.ledgerRepo.DonationFacts(ctx)
	if err != nil {
		return nil, err
	}
	standing, ok := ledger.RankOf(ledger.Leaderboard(history), donorID)
	if !ok {
		return nil, domain.NotFound("donor", donorID)
	}
	referrals, err := s.referralRepo.CountByReferrer(donorID)
	if err != nil {
		return nil, err
	}
	facts := ledger.Summarize(donorID, history, int(referrals))
	badges := ledger.EvaluateBadges(facts, s.badges)
	return &DonorProgress{
		DonorID:           donorID,
		Rank:              standing.Rank,
		TotalCents:        facts.TotalCents,
		DonationCount:     facts.DonationCount,
		ProjectsSupported: facts.ProjectsSupported,
		Countries:         facts.Countries,
		Referrals:         facts.Referrals,
		Badges:            badges,
		UnlockedCount:     unlocked(badges),
	}, nil
}

// Leaderboard returns the top limit donors (limit <= 0 means everyone).
func (s *ProgressService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	history, err := s.ledgerRepo.DonationFacts(ctx)
	if err != nil {
		return nil, err
	}
	board := ledger.Leaderboard(history)
	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}
	rows := make([]LeaderboardRow, 0, len(board))
	for _, st := range board {
		referrals, err := s.referralRepo.CountByReferrer(st.DonorID)
		if err != nil {
			return nil, err
		}
		facts := ledger.Summarize(st.DonorID, history, int(referrals))
		rows = append(rows, LeaderboardRow{Standing: st, BadgeCount: unlocked(ledger.EvaluateBadges(facts, s.badges))})
	}
	return rows, nil
}

func unlocked(badges []ledger.BadgeProgress) int {
	n := 0
	for _, b := range badges {
		if b.Unlocked {
			n++
		}
	}
	return n
}
