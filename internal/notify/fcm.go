package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Firebase Cloud Messaging HTTP v1 constants.
const (
	FCMScope       = "https://www.googleapis.com/auth/firebase.messaging"
	FCMBaseURL     = "https://fcm.googleapis.com/v1/projects/"
	DefaultTimeout = 10 * time.Second
)

// FCMSender sends notifications through the FCM HTTP v1 API.
type FCMSender struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// FCMOption customizes an FCMSender.
type FCMOption func(*FCMSender)

// WithEndpoint overrides the messages:send URL.
func WithEndpoint(url string) FCMOption {
	return func(s *FCMSender) { s.endpoint = url }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) FCMOption {
	return func(s *FCMSender) { s.log = log }
}

// NewFCMSender creates a sender authenticated by ts for the given Firebase
// project.
func NewFCMSender(projectID string, ts oauth2.TokenSource, opts ...FCMOption) *FCMSender {
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = DefaultTimeout

	s := &FCMSender{
		endpoint: FCMBaseURL + projectID + "/messages:send",
		client:   client,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFCMSenderFromFile reads a service-account JSON file. projectID
// overrides the project named in the credentials.
func NewFCMSenderFromFile(ctx context.Context, path, projectID string, opts ...FCMOption) (*FCMSender, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, FCMScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, fmt.Errorf("credentials %s name no project; set push { project-id }", path)
	}

	return NewFCMSender(projectID, creds.TokenSource, opts...), nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string       `json:"token"`
	Notification Notification `json:"notification"`
}

// Send implements Sender.
func (s *FCMSender) Send(ctx context.Context, token string, n Notification) error {
	if strings.TrimSpace(token) == "" {
		return ErrNoTarget
	}

	body, err := json.Marshal(fcmRequest{Message: fcmMessage{Token: token, Notification: n}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("send notification: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	s.log.Debug().Str("title", n.Title).Msg("notification sent")
	return nil
}
