package core

import "fmt"

// CountPolicy decides which transaction statuses contribute to a summary.
type CountPolicy string

const (
	// CountAll counts pending and approved transactions.
	CountAll CountPolicy = "all"
	// CountApproved counts approved transactions only.
	CountApproved CountPolicy = "approved"
)

func (p CountPolicy) IsValid() bool {
	return p == CountAll || p == CountApproved
}

// CountedStatuses returns the statuses summed under the policy. Rejected
// transactions never count.
func (p CountPolicy) CountedStatuses() []Status {
	if p == CountApproved {
		return []Status{StatusApproved}
	}
	return []Status{StatusPending, StatusApproved}
}

func ParseCountPolicy(s string) (CountPolicy, error) {
	p := CountPolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid count policy %q: must be %q or %q", s, CountAll, CountApproved)
	}
	return p, nil
}
