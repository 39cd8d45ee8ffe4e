package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/evoapps/datastore/pkg/types"
	"github.com/evoapps/datastore/server/internal/config"
)

// deliver posts ev to h and records the outcome. Errors are logged only.
func (e *Engine) deliver(h config.HookConfig, ev types.ChangeEvent) {
	var body []byte
	switch h.Type {
	case "slack":
		body = slackPayload(ev)
	case "teams":
		body = teamsPayload(h, ev)
	default:
		body = httpPayload(h, ev)
	}

	d := Delivery{Hook: h.Name, Type: h.Type, Path: ev.Path, At: e.now().UTC(), Status: StatusDelivered}
	if err := e.post(h.URL(), body); err != nil {
		d.Status = StatusFailed
		d.Error = err.Error()
		slog.Error("hooks: delivery failed", "hook", h.Name, "type", h.Type, "path", ev.Path, "err", err)
	} else {
		slog.Debug("hooks: delivered", "hook", h.Name, "type", h.Type, "path", ev.Path)
	}
	e.record(d)
}

func slackPayload(ev types.ChangeEvent) []byte {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*datastore* `%s` written (%d bytes)", ev.Path, ev.Size),
	})
	return body
}

func teamsPayload(h config.HookConfig, ev types.ChangeEvent) []byte {
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "00D4FF",
		"summary":    h.Name,
		"title":      fmt.Sprintf("datastore: %s", ev.Path),
		"text":       fmt.Sprintf("%s written at %s (%d bytes)", ev.Path, ev.At.Format("2006-01-02 15:04:05 MST"), ev.Size),
	})
	return body
}

func httpPayload(h config.HookConfig, ev types.ChangeEvent) []byte {
	body, _ := json.Marshal(map[string]any{"hook": h.Name, "event": ev})
	return body
}

func (e *Engine) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
