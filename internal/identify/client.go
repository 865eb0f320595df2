// Package identify talks to an OpenAI-compatible chat-completions service to
// identify plants, diagnose their health and answer care questions.
package identify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/conorfennell/leafcare/internal/domain"
)

var (
	// ErrUnavailable means the service could not be reached or kept failing.
	ErrUnavailable = errors.New("identification service unavailable")
	// ErrBadResponse means the service answered with something unusable.
	ErrBadResponse = errors.New("identification service returned an unusable response")
)

// Config holds connection settings for the service.
type Config struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model" validate:"required"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	RatePerSec  float64       `koanf:"rate_per_sec" validate:"gte=0"`
	MaxAttempts int           `koanf:"max_attempts" validate:"gte=0"`
	// BackoffBase is the wait before the first retry; later waits double.
	BackoffBase time.Duration `koanf:"backoff_base" validate:"gte=0"`
}

const maxBackoff = 20 * time.Second

// Client is a rate-limited, retrying chat-completions client.
type Client struct {
	api         *openai.Client
	model       string
	timeout     time.Duration
	limiter     *rate.Limiter
	maxAttempts int
	backoffBase time.Duration
	log         *slog.Logger
}

// New builds a Client. Zero values in cfg fall back to usable defaults.
func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}

	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		log:         log.With("component", "identify"),
	}
}

// IdentifyImage identifies the plant in a photo.
func (c *Client) IdentifyImage(ctx context.Context, image []byte, mime string) (domain.Identification, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: identifyPrompt},
		imageMessage("Identify this plant.", image, mime),
	}
	return c.identification(ctx, msgs)
}

// IdentifyName identifies a plant from its common or scientific name.
func (c *Client) IdentifyName(ctx context.Context, name string) (domain.Identification, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: identifyPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Identify the plant known as %q.", name)},
	}
	return c.identification(ctx, msgs)
}

// Diagnose grades the health of the plant in a photo.
func (c *Client) Diagnose(ctx context.Context, image []byte, mime string) (domain.Diagnosis, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: diagnosePrompt},
		imageMessage("Check the health of this plant.", image, mime),
	}
	content, err := c.complete(ctx, msgs, true)
	if err != nil {
		return domain.Diagnosis{}, err
	}
	var d domain.Diagnosis
	if err := decodeJSON(content, &d); err != nil {
		return domain.Diagnosis{}, err
	}
	d.Status = normalizeSeverity(d.Status)
	return d, nil
}

// Chat answers message in the context of one plant and the prior turns.
func (c *Client) Chat(ctx context.Context, plantContext string, history []domain.ChatMessage, message string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatPrompt(plantContext),
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	reply, err := c.complete(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrBadResponse)
	}
	return reply, nil
}

func (c *Client) identification(ctx context.Context, msgs []openai.ChatCompletionMessage) (domain.Identification, error) {
	content, err := c.complete(ctx, msgs, true)
	if err != nil {
		return domain.Identification{}, err
	}
	var id domain.Identification
	if err := decodeJSON(content, &id); err != nil {
		return domain.Identification{}, err
	}
	if id.CommonName == "" && id.ScientificName == "" {
		return domain.Identification{}, fmt.Errorf("%w: no plant named in reply", ErrBadResponse)
	}
	// Some models answer in percent.
	if id.Confidence > 1 {
		id.Confidence /= 100
	}
	return id, nil
}

// complete sends one chat request, retrying transient failures.
func (c *Client) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		content, err := c.once(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}

		if attempt < c.maxAttempts {
			backoff := c.backoff(attempt)
			c.log.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	if errors.Is(lastErr, ErrBadResponse) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (c *Client) once(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrBadResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// backoff doubles from backoffBase per attempt, capped, with +/-25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

// retryable reports whether err is worth another attempt. 4xx other than
// 429 is final.
func retryable(err error) bool {
	if errors.Is(err, ErrBadResponse) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func imageMessage(text string, image []byte, mime string) openai.ChatCompletionMessage {
	if mime == "" {
		mime = http.DetectContentType(image)
	}
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    url,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	}
}
