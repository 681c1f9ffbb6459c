package intake

import (
	"context"
	"strings"
)

type actionFunc func(context.Context, Event) error

type actionFactory struct {
	byType map[string]actionFunc
}

func newActionFactory(onSubmitted, onCancelled actionFunc) *actionFactory {
	return &actionFactory{
		byType: map[string]actionFunc{
			"order_submitted": onSubmitted,
			"created":         onSubmitted,
			"order_cancelled": onCancelled,
			"cancelled":       onCancelled,
			"canceled":        onCancelled,
		},
	}
}

func (f *actionFactory) get(typ string) (actionFunc, bool) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	fn, ok := f.byType[typ]
	return fn, ok
}
