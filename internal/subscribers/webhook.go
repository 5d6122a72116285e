package subscribers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"github.com/darkden-lab/eventbus/internal/event"
)

// WebhookConfig holds the configuration for a webhook subscriber.
type WebhookConfig struct {
	URL             string            `mapstructure:"url"`
	Method          string            `mapstructure:"method"`           // POST, PUT (default POST)
	Headers         map[string]string `mapstructure:"headers"`          // custom headers
	PayloadTemplate string            `mapstructure:"payload_template"` // Go template over the decoded envelope
	Timeout         time.Duration     `mapstructure:"timeout"`
	RateLimit       float64           `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst           int               `mapstructure:"burst"`
}

// Webhook forwards events to an HTTP endpoint. Without a template the raw
// envelope is sent as the request body.
type Webhook struct {
	name    string
	config  WebhookConfig
	client  *http.Client
	tmpl    *template.Template
	limiter *rate.Limiter
}

// webhookPayload is what payload templates are executed against.
type webhookPayload struct {
	Code   string
	Sender string
	Body   map[string]any
	Raw    string
}

// NewWebhook creates a Webhook from the given config.
func NewWebhook(name string, config WebhookConfig) (*Webhook, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("url is required for webhook subscriber %s", name)
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	config.Method = strings.ToUpper(config.Method)
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit > 0 && config.Burst <= 0 {
		config.Burst = 1
	}

	w := &Webhook{
		name:   name,
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}

	if config.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst)
	}

	if config.PayloadTemplate != "" {
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(config.PayloadTemplate)
		if err != nil {
			return nil, fmt.Errorf("invalid payload template: %w", err)
		}
		w.tmpl = tmpl
	}

	return w, nil
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) HandleEvent(ctx context.Context, raw string) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	body := []byte(raw)

	if w.tmpl != nil {
		payload, err := decodePayload(raw)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := w.tmpl.Execute(&buf, payload); err != nil {
			return fmt.Errorf("execute payload template: %w", err)
		}
		body = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func decodePayload(raw string) (webhookPayload, error) {
	env, err := event.Deserialize(raw, nil)
	if err != nil {
		return webhookPayload{}, err
	}

	p := webhookPayload{Code: env.Code, Sender: env.Sender, Raw: raw}
	if len(env.Body) > 0 && string(env.Body) != "null" {
		if err := json.Unmarshal(env.Body, &p.Body); err != nil {
			return webhookPayload{}, fmt.Errorf("%w: body: %v", event.ErrMalformedEnvelope, err)
		}
	}
	return p, nil
}
