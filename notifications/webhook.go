// Package notifications delivers decisive trading outcomes to configured
// webhook URLs. Delivery is asynchronous and best-effort: a dead endpoint
// is logged and never slows the pipeline.
package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookPayload is the JSON body posted on every event.
type WebhookPayload struct {
	Event   string                 `json:"event"`
	At      time.Time              `json:"at"`
	Account string                 `json:"account"`
	Symbol  string                 `json:"symbol"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WebhookNotifier fans events out to a fixed URL list.
type WebhookNotifier struct {
	urls   []string
	client *http.Client
}

// NewWebhookNotifier creates a notifier. An empty URL list disables it.
func NewWebhookNotifier(urls []string) *WebhookNotifier {
	return &WebhookNotifier{
		urls: urls,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PositionOpened announces a fill.
func (n *WebhookNotifier) PositionOpened(account, symbol string, shares int, price float64, score int) {
	n.send(WebhookPayload{
		Event:   "position_opened",
		At:      time.Now(),
		Account: account,
		Symbol:  symbol,
		Message: fmt.Sprintf("📈 [%s] Opened %s: %d shares @ %.2f (score %d)", account, symbol, shares, price, score),
		Details: map[string]interface{}{
			"shares": shares,
			"price":  price,
			"score":  score,
		},
	})
}

// PositionClosed announces an exit with its reason and result.
func (n *WebhookNotifier) PositionClosed(account, symbol, reason string, pnl, pnlPct float64) {
	n.send(WebhookPayload{
		Event:   "position_closed",
		At:      time.Now(),
		Account: account,
		Symbol:  symbol,
		Message: fmt.Sprintf("💰 [%s] Closed %s (%s): %+.2f (%+.2f%%)", account, symbol, reason, pnl, pnlPct*100),
		Details: map[string]interface{}{
			"reason":  reason,
			"pnl":     pnl,
			"pnl_pct": pnlPct,
		},
	})
}

func (n *WebhookNotifier) send(payload WebhookPayload) {
	if len(n.urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, url := range n.urls {
		go n.deliver(url, body)
	}
}

func (n *WebhookNotifier) deliver(url string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		log.Printf("⚠️  Webhook request build failed for %s: %v", url, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "UOA-Scanner/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("⚠️  Webhook delivery to %s failed: %v", url, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("⚠️  Webhook %s answered %d", url, resp.StatusCode)
	}
}
