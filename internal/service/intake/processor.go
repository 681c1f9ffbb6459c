// Package intake turns external order events into order store commands.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
)

const dedupTTL = 24 * time.Hour

// Processor handles intake events.
type Processor struct {
	orders  OrderPort
	dedup   Deduper
	logger  logx.Logger
	factory *actionFactory
}

// NewProcessor creates a Processor. dedup may be nil.
func NewProcessor(o OrderPort, dedup Deduper, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Processor{orders: o, dedup: dedup, logger: logger}
	p.factory = newActionFactory(p.onSubmitted, p.onCancelled)
	return p
}

// Handle processes one event. Unknown types are ignored. Errors for which a
// retry cannot help match apperr.IsTerminal.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	fn, ok := p.factory.get(e.Type)
	if !ok {
		p.logger.Debug("intake: ignoring event", logx.String("type", e.Type))
		return nil
	}

	if p.dedup != nil && e.Key != "" {
		fresh, err := p.dedup.Claim(ctx, "intake:"+e.Key, dedupTTL)
		if err != nil {
			return err
		}
		if !fresh {
			p.logger.Info("intake: duplicate event skipped", logx.String("key", e.Key))
			return nil
		}
	}

	err := fn(ctx, e)
	if err != nil && !apperr.IsTerminal(err) && p.dedup != nil && e.Key != "" {
		// даём сообщению шанс на повтор
		if rerr := p.dedup.Release(ctx, "intake:"+e.Key); rerr != nil {
			p.logger.Warn("intake: release key failed", logx.String("key", e.Key), logx.Err(rerr))
		}
	}
	return err
}

func (p *Processor) onSubmitted(ctx context.Context, e Event) error {
	if e.Draft == nil {
		return apperr.Validation("order", "required")
	}
	o, err := p.orders.Create(ctx, *e.Draft)
	if err != nil {
		return err
	}
	p.logger.Info("intake: order submitted",
		logx.String("event", "order_submitted"),
		logx.Int64("order_id", o.ID),
		logx.String("order_number", o.Number),
	)
	return nil
}

func (p *Processor) onCancelled(ctx context.Context, e Event) error {
	if e.OrderID <= 0 {
		return apperr.Validation("order_id", "required")
	}
	_, err := p.orders.Cancel(ctx, orders.CancelCommand{OrderID: e.OrderID, CustomerID: e.CustomerID, Reason: e.Reason})
	if errors.Is(err, apperr.ErrInvalidTransition) {
		// уже закрыт
		return nil
	}
	return err
}
