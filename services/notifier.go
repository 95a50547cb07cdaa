package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"match-lobby-system/models"
	"match-lobby-system/utils"
)

// NotificationSink is the one-way channel resolved matches are announced on.
// No response is expected and delivery is best-effort.
type NotificationSink interface {
	Notify(ctx context.Context, event models.MatchResolvedEvent) error
}

// WebhookSink POSTs resolution events to an external endpoint (chat bot,
// narrative generator, whatever is listening).
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, Client: utils.HTTPClient}
}

func (w *WebhookSink) Notify(ctx context.Context, event models.MatchResolvedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "encode event failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "build request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return eris.New(fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}
