package services

import (
	"context"
	"log"

	"gorm.io/gorm"

	"grant-review-api/models"
)

// EventHandler consumes domain events inside the transaction that produced
// them. The returned func, if any, runs only after that transaction commits.
type EventHandler interface {
	HandleEvent(ctx context.Context, tx *gorm.DB, event models.Event) (func(context.Context), error)
}

// EventBus fans events out to every subscribed handler.
type EventBus struct {
	handlers []EventHandler
}

func NewEventBus(handlers ...EventHandler) *EventBus {
	return &EventBus{handlers: handlers}
}

func (b *EventBus) Subscribe(h EventHandler) {
	b.handlers = append(b.handlers, h)
}

// publish runs each handler under its own savepoint. A failing handler is
// rolled back to the savepoint and logged; the surrounding transition still
// commits.
func (b *EventBus) publish(ctx context.Context, tx *gorm.DB, events []models.Event) []func(context.Context) {
	if b == nil {
		return nil
	}

	var after []func(context.Context)
	for _, ev := range events {
		for _, h := range b.handlers {
			var hook func(context.Context)
			err := tx.Transaction(func(sp *gorm.DB) error {
				var err error
				hook, err = h.HandleEvent(ctx, sp, ev)
				return err
			})
			if err != nil {
				log.Printf("event %s for proposal=%q grant=%q: handler failed: %v", ev.Type, ev.ProposalID, ev.GrantID, err)
				continue
			}
			if hook != nil {
				after = append(after, hook)
			}
		}
	}
	return after
}

// runInTx executes fn in one transaction, publishes the events it returns
// in that same transaction, and runs the after-commit hooks on success.
func runInTx(ctx context.Context, db *gorm.DB, bus *EventBus, fn func(tx *gorm.DB) ([]models.Event, error)) error {
	var hooks []func(context.Context)
	err := withContext(ctx, db).Transaction(func(tx *gorm.DB) error {
		events, err := fn(tx)
		if err != nil {
			return err
		}
		hooks = bus.publish(ctx, tx, events)
		return nil
	})
	if err != nil {
		return storageError(err, "commit transaction")
	}
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}
