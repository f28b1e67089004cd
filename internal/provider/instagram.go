// Package provider implements the Meta Graph API boundary for Instagram
// direct messages. It is the only package that talks to the network on
// the send path; everything above it sees the dispatch.Sender interface.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"dmflow/internal/dispatch"
	"dmflow/pkg/logx"
)

const (
	defaultBaseURL      = "https://graph.instagram.com"
	defaultGraphVersion = "v19.0"
	defaultTimeout      = 15 * time.Second
)

type Config struct {
	// BaseURL overrides the Graph endpoint, mainly for tests.
	BaseURL string
	// Version is the Graph API version segment, e.g. "v19.0".
	Version     string
	AccessToken string
	// SenderID is the Instagram professional account id messages are
	// sent from.
	SenderID string
	Timeout  time.Duration
}

// FromEnv fills any unset credential fields from the environment.
// Values already present on cfg win, so file config overrides env.
func (c Config) FromEnv() Config {
	if c.AccessToken == "" {
		c.AccessToken = os.Getenv("INSTAGRAM_ACCESS_TOKEN")
	}
	if c.SenderID == "" {
		c.SenderID = os.Getenv("INSTAGRAM_SENDER_ID")
	}
	if c.Version == "" {
		c.Version = os.Getenv("META_GRAPH_VERSION")
	}
	return c
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(c.Version) == "" {
		c.Version = defaultGraphVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Client sends direct messages through the Graph messages endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

var _ dispatch.Sender = (*Client)(nil)

func New(cfg Config, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("provider: access token is required")
	}
	if strings.TrimSpace(cfg.SenderID) == "" {
		return nil, errors.New("provider: sender id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}, nil
}

type messagePayload struct {
	MessagingProduct string            `json:"messaging_product"`
	Recipient        payloadRecipient  `json:"recipient"`
	Message          payloadText       `json:"message"`
	Tag              string            `json:"tag,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type payloadRecipient struct {
	ID string `json:"id"`
}

type payloadText struct {
	Text string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     *graphError
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// Send delivers one direct message. Any non-2xx response or transport
// failure is normalized into a single error; callers never see HTTP
// details beyond the Graph error message.
func (c *Client) Send(ctx context.Context, req dispatch.SendRequest) (dispatch.SendResult, error) {
	if strings.TrimSpace(req.RecipientUserID) == "" {
		return dispatch.SendResult{}, errors.New("provider: recipient user id is empty")
	}
	if req.Message == "" {
		return dispatch.SendResult{}, errors.New("provider: message is empty")
	}

	payload := messagePayload{
		MessagingProduct: "instagram",
		Recipient:        payloadRecipient{ID: req.RecipientUserID},
		Message:          payloadText{Text: req.Message},
		Tag:              req.Tag,
		Metadata:         req.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return dispatch.SendResult{}, err
	}

	url := fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Version, c.cfg.SenderID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dispatch.SendResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return dispatch.SendResult{}, fmt.Errorf("provider: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Graph error bodies are small; cap the read anyway.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dispatch.SendResult{}, fmt.Errorf("provider: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dispatch.SendResult{}, graphErrorFrom(resp.StatusCode, raw)
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return dispatch.SendResult{}, fmt.Errorf("provider: unexpected response body: %w", err)
	}
	c.log.Debug("message accepted by graph api",
		logx.String("recipient", req.RecipientUserID),
		logx.String("message_id", out.MessageID),
		logx.Duration("took", time.Since(start)))
	return dispatch.SendResult{MessageID: out.MessageID}, nil
}

// graphErrorFrom extracts the human-readable Graph error when the body
// parses, falling back to the HTTP status otherwise.
func graphErrorFrom(status int, raw []byte) error {
	var wrapper struct {
		Error graphError `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Error.Message != "" {
		if wrapper.Error.Code != 0 {
			return fmt.Errorf("graph api error %d: %s", wrapper.Error.Code, wrapper.Error.Message)
		}
		return fmt.Errorf("graph api error: %s", wrapper.Error.Message)
	}
	return fmt.Errorf("graph api returned status %d", status)
}
