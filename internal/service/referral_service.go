package service

import (
	"context"
	"log"
	"strings"

	"fundledger/internal/domain"
	"fundledger/internal/models"
	"fundledger/internal/repository"
)

// ReferralService records who brought whom; the count feeds the Community
// Champion badge.
type ReferralService struct {
	referralRepo *repository.ReferralRepository
}

func NewReferralService(referralRepo *repository.ReferralRepository) *ReferralService {
	return &ReferralService{referralRepo: referralRepo}
}

// RecordReferral links referredID to referrerID. A donor can be referred only
// once; repeating the same pair returns the existing record.
func (s *ReferralService) RecordReferral(ctx context.Context, referrerID, referredID string) (*models.Referral, error) {
	referrerID = strings.TrimSpace(referrerID)
	referredID = strings.TrimSpace(referredID)
	if referrerID == "" {
		return nil, domain.Invalid("referrer_id", "required")
	}
	if referredID == "" {
		return nil, domain.Invalid("referred_id", "required")
	}
	if referrerID == referredID {
		return nil, domain.Invalid("referred_id", "cannot refer yourself")
	}
	existing, err := s.referralRepo.GetByReferredID(referredID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ReferrerID == referrerID {
			return existing, nil
		}
		return nil, domain.Invalid("referred_id", "%s was already referred", referredID)
	}
	ref := &models.Referral{ReferrerID: referrerID, ReferredID: referredID}
	if err := s.referralRepo.CreateReferral(ref); err != nil {
		if again, gerr := s.referralRepo.GetByReferredID(referredID); gerr == nil && again != nil && again.ReferrerID == referrerID {
			return again, nil
		}
		log.Printf("[referral] failed to create referral: %v", err)
		return nil, err
	}
	return ref, nil
}

func (s *ReferralService) ListByReferrer(ctx context.Context, referrerID string, limit, offset int) ([]models.Referral, error) {
	return s.referralRepo.ListByReferrerID(referrerID, limit, offset)
}
