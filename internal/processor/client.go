// Package processor is the HTTP client for the two upstream payment
// processors.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxsonferovante/AsyncPaymentProcessor/internal/model"
)

const (
	connectTimeout = 2 * time.Second
	probeTimeout   = 4 * time.Second
	submitTimeout  = 10 * time.Second

	// The processors signal acceptance through these body phrases, not
	// through status codes alone.
	acceptedPhrase = "payment processed successfully"
	replayPhrase   = "correlationid already exists"
)

// Outcome classifies the result of a payment submission.
type Outcome int

const (
	Rejected Outcome = iota
	Accepted
)

// Client submits payments to and probes the health of both processors.
// All calls share one pooled transport; each call carries its own
// deadline.
type Client struct {
	baseURLs map[model.ProcessorType]string
	http     *http.Client
	log      *logrus.Entry
}

// NewClient builds a client for the given processor base URLs.
func NewClient(defaultURL, fallbackURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 128,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURLs: map[model.ProcessorType]string{
			model.ProcessorDefault:  strings.TrimRight(defaultURL, "/"),
			model.ProcessorFallback: strings.TrimRight(fallbackURL, "/"),
		},
		http: &http.Client{Transport: transport},
		log:  logrus.WithField("component", "processor-client"),
	}
}

// Probe fetches a fresh health view from one processor. It returns nil
// whenever no trustworthy opinion could be obtained: rate limiting (429),
// any other non-2xx status, transport errors and timeouts all look the
// same to the caller.
func (c *Client) Probe(ctx context.Context, pt model.ProcessorType) *model.HealthView {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURLs[pt]+"/payments/service-health", nil)
	if err != nil {
		c.log.WithError(err).WithField("processor", pt).Error("building health probe request")
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("processor", pt).Warn("health probe failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.WithField("processor", pt).Debug("health probe rate limited")
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithFields(logrus.Fields{
			"processor": pt,
			"status":    resp.StatusCode,
		}).Warn("health probe returned unexpected status")
		return nil
	}

	var body struct {
		Failing         bool `json:"failing"`
		MinResponseTime int  `json:"minResponseTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.WithError(err).WithField("processor", pt).Warn("decoding health probe response")
		return nil
	}
	return &model.HealthView{
		Failing:         body.Failing,
		MinResponseTime: body.MinResponseTime,
		LastCheckedAt:   time.Now().UTC(),
	}
}

// submitRequest is the wire body of POST /payments.
type submitRequest struct {
	CorrelationID string       `json:"correlationId"`
	Amount        model.Amount `json:"amount"`
	RequestedAt   time.Time    `json:"requestedAt"`
}

// Submit forwards one payment to a processor and classifies the response.
// A 422 whose body names an already-known correlationId counts as
// Accepted: an earlier attempt went through but its response was lost,
// and the payment must still be recorded exactly once this run.
func (c *Client) Submit(ctx context.Context, pt model.ProcessorType, p model.Payment) Outcome {
	body, err := json.Marshal(submitRequest{
		CorrelationID: p.CorrelationID.String(),
		Amount:        p.Amount,
		RequestedAt:   p.RequestedAt.UTC(),
	})
	if err != nil {
		c.log.WithError(err).WithField("correlation_id", p.CorrelationID).Error("encoding payment submission")
		return Rejected
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURLs[pt]+"/payments", bytes.NewReader(body))
	if err != nil {
		c.log.WithError(err).WithField("correlation_id", p.CorrelationID).Error("building payment submission request")
		return Rejected
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"processor":      pt,
			"correlation_id": p.CorrelationID,
		}).Warn("payment submission failed")
		return Rejected
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK && strings.Contains(string(respBody), acceptedPhrase):
		return Accepted
	case resp.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(string(respBody)), replayPhrase):
		c.log.WithFields(logrus.Fields{
			"processor":      pt,
			"correlation_id": p.CorrelationID,
		}).Info("duplicate submission treated as accepted")
		return Accepted
	default:
		c.log.WithFields(logrus.Fields{
			"processor":      pt,
			"correlation_id": p.CorrelationID,
			"status":         resp.StatusCode,
		}).Warn("payment submission rejected")
		return Rejected
	}
}
