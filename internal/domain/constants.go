package domain

const (
	RoleDonor    = "DONOR"
	RoleApprover = "APPROVER"
	RoleAdmin    = "ADMIN"
	RolePayment  = "PAYMENT" // the payment collaborator reporting authorized payments
)

const (
	ProjectStatusOpen   = "OPEN"
	ProjectStatusClosed = "CLOSED"
)

type DonationStatus string

const (
	DonationPending  DonationStatus = "PENDING"
	DonationCaptured DonationStatus = "CAPTURED"
	DonationFailed   DonationStatus = "FAILED"
)

// MilestoneStatus is the closed set of milestone lifecycle states.
// The only legal moves are Pending -> Approved -> Released.
type MilestoneStatus string

const (
	MilestonePending  MilestoneStatus = "PENDING"
	MilestoneApproved MilestoneStatus = "APPROVED"
	MilestoneReleased MilestoneStatus = "RELEASED"
)

type EntryType string

const (
	EntryDonationCaptured  EntryType = "DONATION_CAPTURED"
	EntryMilestoneApproved EntryType = "MILESTONE_APPROVED"
	EntryMilestoneReleased EntryType = "MILESTONE_RELEASED"
)

const (
	NotifDonationReceived = "DONATION_RECEIVED"
	NotifMilestoneFunded  = "MILESTONE_RELEASED"
)

// MaxAmountCents bounds a single donation so percentage arithmetic stays in int64.
const MaxAmountCents int64 = 100_000_000_000_000
