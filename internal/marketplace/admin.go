package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// Stats counts stored records for the admin dashboard.
type Stats struct {
	Negotiations map[negotiation.Status]int `json:"negotiations"`
	Payments     map[escrow.Status]int      `json:"payments"`
	Disputes     map[DisputeStatus]int      `json:"disputes"`
	Ratings      int                        `json:"ratings"`
	// Escrowed is the total of payments not yet released or refunded.
	Escrowed float64 `json:"escrowed"`
}

// list decodes every record under prefix.
func list[T any](ctx context.Context, s *Service, prefix string) ([]T, error) {
	recs, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ListDisputes returns disputes newest first, optionally only those in status.
func (s *Service) ListDisputes(ctx context.Context, status DisputeStatus) ([]Dispute, error) {
	all, err := list[Dispute](ctx, s, DisputeKey(""))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Negotiations: map[negotiation.Status]int{},
		Payments:     map[escrow.Status]int{},
		Disputes:     map[DisputeStatus]int{},
	}

	for _, category := range []workitem.Category{workitem.CategoryLabour, workitem.CategoryMachine} {
		negotiations, err := list[negotiation.Negotiation](ctx, s, negotiation.Key(category, ""))
		if err != nil {
			return Stats{}, err
		}
		for _, n := range negotiations {
			st.Negotiations[n.Status]++
		}

		payments, err := list[escrow.Payment](ctx, s, escrow.Key(escrow.FlowFor(category), ""))
		if err != nil {
			return Stats{}, err
		}
		for _, p := range payments {
			st.Payments[p.Status]++
			if !p.Status.Terminal() {
				st.Escrowed += p.AmountTotal
			}
		}
	}

	disputes, err := list[Dispute](ctx, s, DisputeKey(""))
	if err != nil {
		return Stats{}, err
	}
	for _, d := range disputes {
		st.Disputes[d.Status]++
	}

	ratings, err := s.store.List(ctx, RatingKey(workitem.CategoryLabour, ""))
	if err != nil {
		return Stats{}, err
	}
	st.Ratings = len(ratings)
	return st, nil
}
