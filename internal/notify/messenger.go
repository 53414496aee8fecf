package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"billdesk/internal/domain"
)

type Messenger interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

// WebhookMessenger posts messages to a chat gateway as multipart forms with
// fields "to" and "body" and an optional "attachment" file.
type WebhookMessenger struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewWebhookMessenger(endpoint string, token string) *WebhookMessenger {
	return &WebhookMessenger{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (m *WebhookMessenger) Send(ctx context.Context, msg domain.OutboundMessage) error {
	to := msg.Destination()
	if to == "" || to == strings.TrimSpace(msg.CountryCode) {
		return fmt.Errorf("messenger: empty destination")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("to", to); err != nil {
		return err
	}
	if err := writer.WriteField("body", msg.Body); err != nil {
		return err
	}
	if msg.AttachmentPath != "" {
		if err := attachFile(writer, msg.AttachmentPath); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("messenger: gateway returned status %d", resp.StatusCode)
	}
	return nil
}

func attachFile(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("messenger: open attachment: %w", err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile("attachment", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// LogMessenger only logs outbound messages. It is used when no gateway is
// configured.
type LogMessenger struct {
	Logger *slog.Logger
}

func (m LogMessenger) Send(_ context.Context, msg domain.OutboundMessage) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outbound message (no gateway configured)",
		slog.String("to", msg.Destination()),
		slog.String("attachment", msg.AttachmentPath),
		slog.Int("body_len", len(msg.Body)),
	)
	return nil
}
