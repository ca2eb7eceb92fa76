package service

import (
	"context"
	"encoding/json"
	"fmt"

	"fundledger/internal/domain"
	"fundledger/internal/models"
	"fundledger/internal/repository"
)

// NotificationService turns ledger events into donor notifications. It is
// registered on the EventBus; redelivered events are deduplicated by the
// (donor, event) unique key.
type NotificationService struct {
	repo         *repository.NotificationRepository
	donationRepo *repository.DonationRepository
}

func NewNotificationService(repo *repository.NotificationRepository, donationRepo *repository.DonationRepository) *NotificationService {
	return &NotificationService{repo: repo, donationRepo: donationRepo}
}

func (s *NotificationService) Notify(donorID, eventID, notifType, title, body string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	return s.repo.Create(&models.Notification{
		DonorID: donorID,
		EventID: eventID,
		Type:    notifType,
		Title:   title,
		Body:    body,
		Data:    dataJSON,
	})
}

func (s *NotificationService) Handle(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventDonationCaptured:
		var d domain.DonationCapturedData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return err
		}
		return s.Notify(d.DonorID, ev.ID, domain.NotifDonationReceived, "Donation received",
			fmt.Sprintf("Thank you! Your donation of %s was received.", FormatCents(d.AmountCents)),
			map[string]interface{}{"donation_id": d.DonationID, "project_id": d.ProjectID})
	case domain.EventMilestoneReleased:
		var m domain.MilestoneEventData
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return err
		}
		donors, err := s.donationRepo.Supporters(m.ProjectID)
		if err != nil {
			return err
		}
		body := fmt.Sprintf("Milestone %q is funded: %s released.", m.Title, FormatCents(m.AmountCents))
		for _, donorID := range donors {
			err := s.Notify(donorID, ev.ID, domain.NotifMilestoneFunded, "Milestone reached", body,
				map[string]interface{}{"milestone_id": m.MilestoneID, "project_id": m.ProjectID})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *NotificationService) List(donorID string, limit, offset int) ([]models.Notification, error) {
	return s.repo.ListByDonorID(donorID, limit, offset)
}

func (s *NotificationService) UnreadCount(donorID string) (int64, error) {
	return s.repo.UnreadCount(donorID)
}

func (s *NotificationService) MarkRead(id uint, donorID string) error {
	return s.repo.MarkRead(id, donorID)
}

// FormatCents renders minor units as a decimal string, e.g. 12345 -> "123.45".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
