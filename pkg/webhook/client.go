package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
	"github.com/kacperjurak/sipfit/pkg/profiling"
)

// Client handles webhook HTTP requests with connection pooling
type Client struct {
	url        string
	httpClient *http.Client
	config     *config.Config
	calculator *Calculator
	bufferPool sync.Pool
}

// NewClient creates a new webhook client with connection pooling
func NewClient(url string, cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,

		// payloads are small JSON documents
		DisableCompression: true,
		ForceAttemptHTTP2:  false,
	}

	return &Client{
		url:        url,
		config:     cfg,
		calculator: NewCalculator(),
		httpClient: &http.Client{
			Timeout:   45 * time.Second,
			Transport: transport,
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
}

// Payload builds the JSON document for webhook
func (c *Client) Payload(webhook models.WebhookItem) models.WebhookResponse {
	validChiSquare := models.SanitizeFloat(webhook.ChiSquare)
	if validChiSquare != webhook.ChiSquare {
		log.Printf("Warning: Chi-square sanitized from %v to %v", webhook.ChiSquare, validChiSquare)
	}

	payload := models.WebhookResponse{
		ID:                 webhook.RequestID,
		BatchID:            webhook.BatchID,
		Iteration:          webhook.Iteration,
		Time:               time.Now().Format(time.RFC3339Nano),
		Status:             webhook.Status,
		Method:             webhook.Method,
		ChiSquare:          validChiSquare,
		RealImpedance:      models.SanitizeSlice(webhook.Spectrum.Real),
		ImaginaryImpedance: models.SanitizeSlice(webhook.Spectrum.Imag),
		Frequencies:        models.SanitizeSlice(webhook.Spectrum.Freqs),
		Parameters:         models.SanitizeMap(webhook.Params),
		Variables:          models.SanitizeMap(webhook.Variables),
		CircuitType:        webhook.Topology,
		Error:              webhook.Error,
	}
	for _, s := range webhook.Chargeability {
		payload.Chargeability = append(payload.Chargeability, models.ChargeabilityPoint{
			Offset: s.Offset,
			Value:  models.SanitizeFloat(s.Chargeability),
		})
	}

	if webhook.Error == "" && len(webhook.Params) > 0 {
		elements, err := c.calculator.CalculateElementImpedances(webhook.Topology, webhook.NegativeLead, webhook.Params, webhook.Spectrum.Freqs)
		if err != nil {
			log.Printf("Warning: element impedances for %s: %v", webhook.RequestID, err)
		}
		payload.ElementImpedances = elements
	}
	return payload
}

// Send posts the webhook payload
func (c *Client) Send(ctx context.Context, webhook models.WebhookItem) (err error) {
	if !c.config.Quiet {
		prof := profiling.NewWebhookProfiler(webhook.RequestID)
		defer func() { prof.Finish(err == nil) }()
	}

	payload := c.Payload(webhook)

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if !c.config.Quiet {
		log.Printf("Webhook sent - ID: %s, Chi-square: %.14e, CircuitType: %s, Status: %d",
			webhook.RequestID, payload.ChiSquare, payload.CircuitType, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return nil
}
