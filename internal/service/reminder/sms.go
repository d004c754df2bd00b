package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/config"
	"github.com/jwalitptl/hmis-api/pkg/circuitbreaker"
)

var ErrSMSDisabled = errors.New("sms delivery is disabled")

// SMSGateway delivers a text message and returns the gateway's message id.
type SMSGateway interface {
	Send(ctx context.Context, to, body string) (string, error)
}

type httpGateway struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
	cb       *circuitbreaker.CircuitBreaker
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// NewSMSGateway posts JSON to the configured gateway. Calls go through a
// circuit breaker so a dead gateway fails fast.
func NewSMSGateway(cfg config.SMSConfig, logger zerolog.Logger) SMSGateway {
	if !cfg.Enabled {
		return disabledGateway{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpGateway{
		url:      cfg.GatewayURL,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		client:   &http.Client{Timeout: timeout},
		cb:       circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultSettings("sms-gateway"), logger),
	}
}

func (g *httpGateway) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(smsRequest{To: to, From: g.senderID, Message: body})
	if err != nil {
		return "", err
	}

	var messageID string
	err = g.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("sms gateway request failed: %w", err)
		}
		defer resp.Body.Close()

		var out smsResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &out)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if out.Error != "" {
				return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, out.Error)
			}
			return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
		}
		messageID = out.MessageID
		return nil
	})
	return messageID, err
}

type disabledGateway struct{}

func (disabledGateway) Send(context.Context, string, string) (string, error) {
	return "", ErrSMSDisabled
}
