// ABOUTME: HTTP implementation of the remote Client against a bot-API endpoint
// ABOUTME: Long-polls for updates and posts sends as JSON

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPClient talks to a bot-API style HTTP endpoint. One HTTPClient serves
// any number of bot tokens; the token is part of each request path.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the given API base URL,
// e.g. "https://api.example.org/bot".
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		// Generous client timeout; the poll timeout is passed per request
		// and the server holds the connection open up to that long.
		http:   &http.Client{Timeout: 90 * time.Second},
		logger: slog.Default().With("component", "remote"),
	}
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type apiUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		ReplyTo *struct {
			MessageID int64 `json:"message_id"`
		} `json:"reply_to_message"`
		Text     string `json:"text"`
		Location *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		Document *struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
		} `json:"document"`
		Caption string `json:"caption"`
	} `json:"message"`
	ChannelPost *struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"channel_post"`
	Callback *struct {
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Message *struct {
			MessageID int64 `json:"message_id"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// FetchEvents long-polls the platform for updates with id >= offset.
func (c *HTTPClient) FetchEvents(ctx context.Context, token string, offset int64, timeout time.Duration) ([]Event, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}

	var updates []apiUpdate
	if err := c.call(ctx, token, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(updates))
	for _, u := range updates {
		ev, ok := decodeUpdate(u)
		if !ok {
			c.logger.Warn("skipping update with unknown payload", "update_id", u.UpdateID)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeUpdate(u apiUpdate) (Event, bool) {
	ev := Event{ID: u.UpdateID}

	switch {
	case u.Message != nil:
		m := u.Message
		ev.UserID = m.From.ID
		ev.ChatID = m.Chat.ID
		ev.MessageID = m.MessageID
		if m.ReplyTo != nil {
			ev.ReplyToID = m.ReplyTo.MessageID
		}
		switch {
		case m.Location != nil:
			ev.Kind = KindLocation
			ev.Location = &Location{Latitude: m.Location.Latitude, Longitude: m.Location.Longitude}
		case m.Document != nil:
			ev.Kind = KindDocument
			ev.Document = &Document{FileRef: m.Document.FileID, FileName: m.Document.FileName, Caption: m.Caption}
		default:
			ev.Kind = KindText
			ev.Text = m.Text
		}
	case u.ChannelPost != nil:
		p := u.ChannelPost
		ev.Kind = KindChannelPost
		ev.ChatID = p.Chat.ID
		ev.MessageID = p.MessageID
		ev.Channel = p.Chat.Username
		ev.Text = p.Text
	case u.Callback != nil:
		cb := u.Callback
		ev.Kind = KindCallback
		ev.UserID = cb.From.ID
		ev.Callback = cb.Data
		if cb.Message != nil {
			ev.ChatID = cb.Message.Chat.ID
			ev.ReplyToID = cb.Message.MessageID
		}
	default:
		return Event{}, false
	}
	return ev, true
}

// SendMessage posts a text message and returns the sent message id.
func (c *HTTPClient) SendMessage(ctx context.Context, token string, chatID int64, text string, opts *SendOptions) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	applySendOptions(payload, opts)

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, token, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// SendDocument posts a stored file reference to a chat.
func (c *HTTPClient) SendDocument(ctx context.Context, token string, chatID int64, doc Document, opts *SendOptions) error {
	payload := map[string]any{
		"chat_id":  chatID,
		"document": doc.FileRef,
	}
	if doc.Caption != "" {
		payload["caption"] = doc.Caption
	}
	applySendOptions(payload, opts)

	var result json.RawMessage
	return c.call(ctx, token, "sendDocument", payload, &result)
}

func applySendOptions(payload map[string]any, opts *SendOptions) {
	if opts == nil {
		return
	}
	if len(opts.Keyboard) > 0 {
		payload["reply_markup"] = map[string]any{
			"keyboard":          opts.Keyboard,
			"resize_keyboard":   true,
			"one_time_keyboard": true,
		}
	}
	if opts.ForceReply {
		payload["reply_markup"] = map[string]any{"force_reply": true}
	}
}

// call performs one JSON POST and maps platform errors onto the package's
// failure taxonomy.
func (c *HTTPClient) call(ctx context.Context, token, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s%s/%s", c.baseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("parsing %s response: %w", method, err)
	}

	if !envelope.OK {
		switch envelope.ErrorCode {
		case http.StatusForbidden:
			return fmt.Errorf("%s: %s: %w", method, envelope.Description, ErrRecipientGone)
		case http.StatusBadRequest:
			return fmt.Errorf("%s: %s: %w", method, envelope.Description, ErrMalformed)
		default:
			return fmt.Errorf("%s failed: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
		}
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("parsing %s result: %w", method, err)
		}
	}
	return nil
}

// Ensure HTTPClient implements the Client interface
var _ Client = (*HTTPClient)(nil)
