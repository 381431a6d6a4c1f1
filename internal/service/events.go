package service

import (
	"context"

	"github.com/iliyamo/admin-auth/internal/model"
)

// EventPublisher delivers auth events. Implementations may fail; the use
// cases log the failure and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.AuthEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.AuthEvent) error { return nil }
