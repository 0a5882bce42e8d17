package reports

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Upvoter performs one storage-level toggle.
type Upvoter interface {
	ToggleUpvote(ctx context.Context, userID, reportID string) (ToggleResult, error)
}

// Toggler coalesces concurrent toggles for the same (user, report) pair into
// a single storage mutation. Callers that overlap an in-flight toggle share
// its result, so a burst of first-time toggles inserts exactly one edge.
type Toggler struct {
	store Upvoter
	group singleflight.Group
}

func NewToggler(store Upvoter) *Toggler {
	return &Toggler{store: store}
}

// Toggle flips the edge for (userID, reportID) and returns the new state
// and total. A cancelled ctx abandons the wait but not the mutation.
func (t *Toggler) Toggle(ctx context.Context, userID, reportID string) (ToggleResult, error) {
	key := userID + "\x00" + reportID

	ch := t.group.DoChan(key, func() (any, error) {
		return t.store.ToggleUpvote(context.WithoutCancel(ctx), userID, reportID)
	})

	select {
	case <-ctx.Done():
		return ToggleResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ToggleResult{}, res.Err
		}
		return res.Val.(ToggleResult), nil
	}
}

// Service is the report store plus toggle coalescing; it is what the HTTP
// layer talks to.
type Service struct {
	*Store
	toggler *Toggler
}

func NewService(store *Store) *Service {
	return &Service{Store: store, toggler: NewToggler(store)}
}

// Toggle is the coalesced upvote toggle.
func (s *Service) Toggle(ctx context.Context, userID, reportID string) (ToggleResult, error) {
	return s.toggler.Toggle(ctx, userID, reportID)
}
