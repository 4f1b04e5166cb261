package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

const maxCommentLength = 1000

// Rating is the single review left once a work item is finalized.
type Rating struct {
	ID         string        `json:"id"`
	WorkItemID string        `json:"work_item_id"`
	Category   string        `json:"category"`
	By         string        `json:"by"`
	ByRole     workitem.Role `json:"by_role"`
	Stars      int           `json:"stars"`
	Comment    string        `json:"comment"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RatingKey keeps job and machine ratings apart.
func RatingKey(category workitem.Category, id string) string {
	if category == workitem.CategoryMachine {
		return "RATE-M-" + id
	}
	return "RATE-" + id
}

// SubmitRating stores the work item's rating. It is refused until the payment
// can be finalized and accepted only once.
func (s *Service) SubmitRating(ctx context.Context, userID string, category workitem.Category, id string, stars int, comment string) (Rating, error) {
	if stars < 1 || stars > 5 {
		return Rating{}, ErrInvalidRating
	}
	if len(comment) > maxCommentLength {
		return Rating{}, fmt.Errorf("%w: comment too long (max %d characters)", ErrInvalidRating, maxCommentLength)
	}

	item, role, err := s.participant(ctx, userID, category, id)
	if err != nil {
		return Rating{}, err
	}

	p, _, err := load[escrow.Payment](ctx, s, escrow.Key(escrow.FlowFor(category), id))
	if err != nil {
		return Rating{}, err
	}
	if err := escrow.CanFinalize(p); err != nil {
		return Rating{}, err
	}

	key := RatingKey(category, id)
	r, _, err := update(ctx, s, key, func(cur *Rating) (Rating, bool, error) {
		if cur != nil {
			return *cur, false, ErrAlreadyRated
		}
		return Rating{
			ID:         uuid.New().String(),
			WorkItemID: item.ID,
			Category:   string(category),
			By:         userID,
			ByRole:     role,
			Stars:      stars,
			Comment:    comment,
			CreatedAt:  s.now(),
		}, true, nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRated) {
			return r, err
		}
		return Rating{}, fmt.Errorf("store rating %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{"work_item": id, "category": category, "stars": stars, "by": role}).Info("Rating submitted")
	return r, nil
}

func (s *Service) GetRating(ctx context.Context, userID string, category workitem.Category, id string) (Rating, error) {
	if _, _, err := s.participant(ctx, userID, category, id); err != nil {
		return Rating{}, err
	}
	r, _, err := load[Rating](ctx, s, RatingKey(category, id))
	return r, err
}
