package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/voyago/internal/models"
)

// PushDispatcher tries the WebSocket registry first and falls back to an
// HTTP push provider endpoint when the recipient has no live session.
type PushDispatcher struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushDispatcher(endpoint string, ws *WSRegistry) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushDispatcher) Push(event models.Event, recipientID string) error {
	if p.WS != nil {
		if err := p.WS.Push(event, recipientID); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	body, _ := json.Marshal(map[string]any{"recipient_id": recipientID, "event": event})
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
