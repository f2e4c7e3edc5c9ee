package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rezerva/internal/artifact"
	"rezerva/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultSMSTimeout = 10 * time.Second
	maxSMSRunes       = 160
)

// Gateway response codes. The vocabulary comes from the SMS provider;
// anything outside it is surfaced raw for diagnosis.
const (
	smsCodeAccepted      = 0
	smsCodeQueued        = 1
	smsCodeInvalidNumber = 21
	smsCodeBlocked       = 22
	smsCodeNoCredit      = 40
)

// SMSConfig captures the SMS gateway settings.
type SMSConfig struct {
	APIURL  string
	APIKey  string
	Sender  string
	Timeout time.Duration
	RPS     float64
	Burst   int
	Client  *http.Client
}

// SMSChannel delivers a short plain-text confirmation line through an SMS
// gateway HTTP API. The voucher artifact is ignored; SMS carries text only.
type SMSChannel struct {
	apiURL  string
	apiKey  string
	sender  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewSMSChannel(cfg SMSConfig, logger *zerolog.Logger) (*SMSChannel, error) {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		return nil, errors.New("sms channel: api url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sms channel: api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSMSTimeout
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

	sender := strings.TrimSpace(cfg.Sender)
	if sender == "" {
		sender = "REZERVA"
	}

	return &SMSChannel{
		apiURL:  apiURL,
		apiKey:  cfg.APIKey,
		sender:  sender,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

func (c *SMSChannel) Name() string { return models.ChannelSMS }

// Deliver resolves the leader's phone number, builds the bounded text line
// and posts it to the gateway. Missing recipient settles without I/O.
func (c *SMSChannel) Deliver(ctx context.Context, res *models.Reservation, transactionID string, _ *artifact.Artifact) Outcome {
	lead, err := leader(res)
	if err != nil {
		return terminalFailure(fmt.Sprintf("recipient not found: %v", err))
	}
	if strings.TrimSpace(lead.Phone) == "" {
		return terminalFailure("recipient not found: lead traveller has no phone number")
	}

	text := BuildSMSText(res)

	if err := c.limiter.Wait(ctx); err != nil {
		out := transientFailure(fmt.Sprintf("rate limiter interrupted: %v", err))
		out.Recipient = lead.Phone
		return out
	}

	outcome := c.post(ctx, transactionID, smsRequest{
		To:   lead.Phone,
		From: c.sender,
		Text: text,
	})
	outcome.Recipient = lead.Phone
	c.logger.Info().
		Str("transaction_id", transactionID).
		Str("reservation_number", res.ReservationNumber).
		Bool("success", outcome.Success).
		Msg("sms delivery settled")
	return outcome
}

// BuildSMSText renders the single confirmation line, truncated to one
// SMS segment.
func BuildSMSText(res *models.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your booking %s is confirmed.", res.ReservationNumber)
	if res.ConfirmationNumber != "" {
		fmt.Fprintf(&b, " Confirmation no: %s.", res.ConfirmationNumber)
	}
	b.WriteString(" Have a pleasant trip!")

	text := b.String()
	runes := []rune(text)
	if len(runes) > maxSMSRunes {
		text = string(runes[:maxSMSRunes])
	}
	return text
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

type smsResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}

func (c *SMSChannel) post(ctx context.Context, transactionID string, payload smsRequest) Outcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return terminalFailure(fmt.Sprintf("encode gateway request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return terminalFailure(fmt.Sprintf("build gateway request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Transaction-Id", transactionID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transientFailure(fmt.Sprintf("gateway request failed: %v", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 500 {
		return transientFailure(fmt.Sprintf("gateway error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return terminalFailure(fmt.Sprintf("gateway rejected request with %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var parsed smsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return transientFailure(fmt.Sprintf("unparseable gateway response: %v", err))
	}

	return normalizeSMSCode(parsed)
}

func normalizeSMSCode(resp smsResponse) Outcome {
	switch resp.Code {
	case smsCodeAccepted, smsCodeQueued:
		return Outcome{Success: true, Message: "sms accepted by gateway", ProviderID: resp.MessageID}
	case smsCodeInvalidNumber:
		return terminalFailure("gateway rejected recipient number as invalid")
	case smsCodeBlocked:
		return terminalFailure("recipient has opted out of sms delivery")
	case smsCodeNoCredit:
		return transientFailure("gateway account has insufficient credit")
	default:
		return terminalFailure(fmt.Sprintf("unrecognized gateway code %d: %s", resp.Code, resp.Message))
	}
}
