package app

import (
	"uoa-scanner/notifications"
)

// eventPublisher is the slice of the SSE broker the fanout needs.
type eventPublisher interface {
	Broadcast(event string, payload interface{})
}

// outcomeFanout delivers decisive position events to the webhook notifier
// and mirrors them onto the dashboard SSE stream, so a close shows up with
// its reason (hard_stop, eod) wherever an open did.
type outcomeFanout struct {
	webhook *notifications.WebhookNotifier
	events  eventPublisher
}

func newOutcomeFanout(webhook *notifications.WebhookNotifier, events eventPublisher) *outcomeFanout {
	return &outcomeFanout{webhook: webhook, events: events}
}

func (o *outcomeFanout) PositionOpened(account, symbol string, shares int, price float64, score int) {
	if o.webhook != nil {
		o.webhook.PositionOpened(account, symbol, shares, price, score)
	}
	o.events.Broadcast("position_opened", map[string]interface{}{
		"account": account,
		"symbol":  symbol,
		"shares":  shares,
		"entry":   price,
		"score":   score,
	})
}

func (o *outcomeFanout) PositionClosed(account, symbol, reason string, pnl, pnlPct float64) {
	if o.webhook != nil {
		o.webhook.PositionClosed(account, symbol, reason, pnl, pnlPct)
	}
	o.events.Broadcast("position_closed", map[string]interface{}{
		"account": account,
		"symbol":  symbol,
		"reason":  reason,
		"pnl":     pnl,
		"pnl_pct": pnlPct,
	})
}
