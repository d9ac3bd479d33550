package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mailer sends account emails.
type Mailer interface {
	SendAccountEmail(ctx context.Context, msg AccountEmail) error
	SendPasswordReset(ctx context.Context, msg PasswordResetEmail) error
}

type AccountEmail struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
}

type PasswordResetEmail struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Token     string `json:"resetToken"`
	ExpiresAt string `json:"expiresAt"`
}

// MailerClient calls the remote mail function using the callable
// {"data": ...} envelope.
type MailerClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewMailerClient(baseURL string, timeout time.Duration, log *zap.Logger) *MailerClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MailerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *MailerClient) SendAccountEmail(ctx context.Context, msg AccountEmail) error {
	return c.call(ctx, "sendAccountEmail", msg)
}

func (c *MailerClient) SendPasswordReset(ctx context.Context, msg PasswordResetEmail) error {
	return c.call(ctx, "sendPasswordResetEmail", msg)
}

func (c *MailerClient) call(ctx context.Context, fn string, data any) error {
	if c.baseURL == "" {
		return fmt.Errorf("mail function url is not configured")
	}
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail service returned %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		Result struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode mail response: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("mail function %s: %s", fn, result.Error.Message)
	}
	c.log.Debug("mail function called", zap.String("function", fn), zap.Bool("success", result.Result.Success))
	return nil
}
