package engine

import (
	"context"

	layoutdomain "layoutaria/internal/layout/domain"
	userdomain "layoutaria/internal/user/domain"
)

// Decision is what an actor may do with one layout.
type Decision struct {
	Read  bool
	Write bool
}

// Authorizer decides layout access. Implementations must fail closed: on
// error the returned Decision grants nothing.
type Authorizer interface {
	Authorize(ctx context.Context, actor userdomain.Actor, layout *layoutdomain.Layout) (Decision, error)
}
