package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"rezerva/internal/artifact"
	"rezerva/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultEmailTimeout = 15 * time.Second

// emailBodyTemplate renders the HTML confirmation message. Parsed once at
// construction so a broken template fails the process at startup, not a job.
const emailBodyTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Your booking is confirmed</h2>
  <p>Dear {{.LeaderName}},</p>
  <p>Thank you for booking with {{.AgencyName}}. Your reservation
  <strong>{{.ReservationNumber}}</strong> is confirmed.</p>
  {{if .ConfirmationNumber}}<p>Confirmation number: <strong>{{.ConfirmationNumber}}</strong></p>{{end}}
  {{if .HasAttachment}}<p>Your confirmation voucher is attached to this message.</p>{{end}}
  <p>We wish you a pleasant trip.</p>
  <p>{{.AgencyName}}</p>
</body>
</html>`

// EmailConfig captures the transactional-mail provider settings.
type EmailConfig struct {
	APIURL     string
	APIKey     string
	From       string
	FromName   string
	AgencyName string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	Client     *http.Client
}

// EmailChannel delivers confirmation mail through a transactional e-mail
// HTTP API, attaching the voucher when one is available.
type EmailChannel struct {
	apiURL     string
	apiKey     string
	from       string
	fromName   string
	agencyName string
	client     *http.Client
	limiter    *rate.Limiter
	tmpl       *template.Template
	logger     *zerolog.Logger
}

func NewEmailChannel(cfg EmailConfig, logger *zerolog.Logger) (*EmailChannel, error) {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		return nil, errors.New("email channel: api url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("email channel: api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("email channel: sender address is required")
	}

	tmpl, err := template.New("confirmation_email").Parse(emailBodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("email channel: parse body template: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmailTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	agency := cfg.AgencyName
	if agency == "" {
		agency = "Rezerva Travel"
	}

	return &EmailChannel{
		apiURL:     apiURL,
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		fromName:   cfg.FromName,
		agencyName: agency,
		client:     client,
		limiter:    rate.NewLimiter(limit, burst),
		tmpl:       tmpl,
		logger:     logger,
	}, nil
}

func (c *EmailChannel) Name() string { return models.ChannelEmail }

// Deliver resolves the leader's e-mail address, renders the HTML body and
// posts the message to the provider. Missing recipient and template
// failures settle without any network I/O.
func (c *EmailChannel) Deliver(ctx context.Context, res *models.Reservation, transactionID string, art *artifact.Artifact) Outcome {
	lead, err := leader(res)
	if err != nil {
		return terminalFailure(fmt.Sprintf("recipient not found: %v", err))
	}
	if strings.TrimSpace(lead.Email) == "" {
		return terminalFailure("recipient not found: lead traveller has no email address")
	}

	body, err := c.renderBody(res, lead, art != nil)
	if err != nil {
		return terminalFailure(fmt.Sprintf("message templating failed: %v", err))
	}

	req := emailRequest{
		From:     c.from,
		FromName: c.fromName,
		To:       lead.Email,
		Subject:  fmt.Sprintf("Booking confirmation %s", res.ReservationNumber),
		HTML:     body,
	}
	if art != nil {
		req.Attachments = []emailAttachment{{
			Filename: fmt.Sprintf("confirmation_%s.pdf", res.ReservationNumber),
			Content:  base64.StdEncoding.EncodeToString(art.Buffer),
			MIMEType: "application/pdf",
		}}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		out := transientFailure(fmt.Sprintf("rate limiter interrupted: %v", err))
		out.Recipient = lead.Email
		return out
	}

	outcome := c.post(ctx, transactionID, req)
	outcome.Recipient = lead.Email
	c.logger.Info().
		Str("transaction_id", transactionID).
		Str("reservation_number", res.ReservationNumber).
		Bool("success", outcome.Success).
		Msg("email delivery settled")
	return outcome
}

type emailRequest struct {
	From        string            `json:"from"`
	FromName    string            `json:"from_name,omitempty"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Attachments []emailAttachment `json:"attachments,omitempty"`
}

type emailAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	MIMEType string `json:"mime_type"`
}

type emailResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (c *EmailChannel) renderBody(res *models.Reservation, lead *models.Traveller, hasAttachment bool) (string, error) {
	var buf bytes.Buffer
	err := c.tmpl.Execute(&buf, map[string]interface{}{
		"LeaderName":         lead.FullName(),
		"AgencyName":         c.agencyName,
		"ReservationNumber":  res.ReservationNumber,
		"ConfirmationNumber": res.ConfirmationNumber,
		"HasAttachment":      hasAttachment,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *EmailChannel) post(ctx context.Context, transactionID string, payload emailRequest) Outcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return terminalFailure(fmt.Sprintf("encode provider request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return terminalFailure(fmt.Sprintf("build provider request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Transaction-Id", transactionID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Timeouts and connection errors are transient by definition.
		return transientFailure(fmt.Sprintf("provider request failed: %v", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed emailResponse
	_ = json.Unmarshal(raw, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		switch strings.ToLower(parsed.Status) {
		case "", "ok", "sent", "queued":
			return Outcome{Success: true, Message: "email accepted by provider", ProviderID: parsed.MessageID}
		default:
			return terminalFailure(fmt.Sprintf("provider reported status %q: %s", parsed.Status, parsed.Error))
		}
	case resp.StatusCode >= 500:
		return transientFailure(fmt.Sprintf("provider error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	default:
		return terminalFailure(fmt.Sprintf("provider rejected request with %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
}
