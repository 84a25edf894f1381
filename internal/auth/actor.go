package auth

import (
	"context"
	"fmt"

	"subject-choices/internal/model"
	"subject-choices/pkg/errors"
)

// Actor is the authenticated user making a request.
type Actor struct {
	ID   string
	Name string
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// RequireOwner fails with UnauthorizedError unless actor owns the upload.
func RequireOwner(actor Actor, upload *model.Upload) error {
	if actor.ID == "" || upload.OwnerID != actor.ID {
		return errors.UnauthorizedError{
			ActorID:  actor.ID,
			Resource: fmt.Sprintf("upload %d", upload.ID),
		}
	}
	return nil
}
