// Package ledger holds the pure accounting core: category splitting, the
// milestone transition rules, the snapshot fold and the donor progress
// projections. Nothing here touches storage.
package ledger

import (
	"sort"
	"strings"

	"fundledger/internal/domain"
)

// GeneralCategory receives the whole amount when no category carries a share.
const GeneralCategory = "General"

// Share is a fund category as declared on a project or on the pool.
type Share struct {
	Name       string `json:"name" toml:"name"`
	Percentage int    `json:"percentage" toml:"percentage"`
}

type CategoryAmount struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
}

// AllocationPlan says where a donation's money goes. ProjectID is nil for the
// undesignated pool.
type AllocationPlan struct {
	ProjectID  *uint            `json:"project_id,omitempty"`
	Categories []CategoryAmount `json:"categories"`
}

func (p AllocationPlan) Total() int64 {
	var t int64
	for _, c := range p.Categories {
		t += c.AmountCents
	}
	return t
}

// ValidateShares checks names are present and unique, each percentage is in
// [0,100] and the total does not exceed 100.
func ValidateShares(shares []Share) error {
	seen := make(map[string]struct{}, len(shares))
	sum := 0
	for i, s := range shares {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return domain.Invalid("categories", "category %d has no name", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return domain.Invalid("categories", "duplicate category %q", name)
		}
		seen[key] = struct{}{}
		if s.Percentage < 0 || s.Percentage > 100 {
			return domain.Invalid("categories", "category %q percentage %d outside 0-100", name, s.Percentage)
		}
		sum += s.Percentage
	}
	if sum > 100 {
		return domain.Invalid("categories", "percentages sum to %d, more than 100", sum)
	}
	return nil
}

// Split divides amountCents across shares with largest-remainder rounding.
// Each share gets floor(amount*pct/sum); the units left over go one at a
// time to the shares with the largest remainders, ties resolved by
// declaration order. The result always sums to amountCents. When the
// percentages add up to less than 100 they are treated as relative weights.
func Split(amountCents int64, shares []Share) ([]CategoryAmount, error) {
	if amountCents <= 0 {
		return nil, domain.Invalid("amount_cents", "must be positive, got %d", amountCents)
	}
	if amountCents > domain.MaxAmountCents {
		return nil, domain.Invalid("amount_cents", "exceeds maximum of %d", domain.MaxAmountCents)
	}
	if err := ValidateShares(shares); err != nil {
		return nil, err
	}
	var sum int64
	for _, s := range shares {
		sum += int64(s.Percentage)
	}
	if sum == 0 {
		return []CategoryAmount{{Category: GeneralCategory, AmountCents: amountCents}}, nil
	}

	out := make([]CategoryAmount, len(shares))
	rem := make([]int64, len(shares))
	var assigned int64
	for i, s := range shares {
		num := amountCents * int64(s.Percentage)
		out[i] = CategoryAmount{Category: s.Name, AmountCents: num / sum}
		rem[i] = num % sum
		assigned += out[i].AmountCents
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })

	// left < len(shares) because every remainder is below sum.
	for k, left := 0, amountCents-assigned; left > 0; k, left = k+1, left-1 {
		out[order[k%len(order)]].AmountCents++
	}
	return out, nil
}

// ProjectTerms is what the allocator needs to know about a target project.
type ProjectTerms struct {
	ID     uint
	Status string
	Shares []Share
}

// Allocator assigns donations to a project or, when none is designated, to
// the undesignated pool.
type Allocator struct {
	PoolShares []Share
}

// Allocate builds the plan for a donation. project must be the looked-up
// terms for projectID, or nil when the lookup found nothing.
func (a Allocator) Allocate(amountCents int64, projectID *uint, project *ProjectTerms) (AllocationPlan, error) {
	if amountCents <= 0 {
		return AllocationPlan{}, &domain.InvalidDonationError{ProjectID: projectID, Reason: "amount must be positive"}
	}
	shares := a.PoolShares
	if projectID != nil {
		if project == nil || project.ID != *projectID {
			return AllocationPlan{}, &domain.InvalidDonationError{ProjectID: projectID, Reason: "project does not exist"}
		}
		if project.Status != domain.ProjectStatusOpen {
			return AllocationPlan{}, &domain.InvalidDonationError{ProjectID: projectID, Reason: "project is closed"}
		}
		shares = project.Shares
	}
	parts, err := Split(amountCents, shares)
	if err != nil {
		return AllocationPlan{}, &domain.InvalidDonationError{ProjectID: projectID, Reason: err.Error()}
	}
	return AllocationPlan{ProjectID: projectID, Categories: parts}, nil
}
