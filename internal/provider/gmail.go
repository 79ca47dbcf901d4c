package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mira/internal/errors"
	"mira/internal/logging"
	"mira/internal/model"
)

const (
	defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"
	gmailPageSize       = 100
)

// GmailClient reads a Gmail mailbox through the REST API. Fetches use an
// inclusive after: query on the cursor primary; the boundary overlap is
// filtered out locally.
type GmailClient struct {
	accountID string
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	logger    logging.Logger
}

// NewGmailClient builds a client for one account.
func NewGmailClient(accountID string, tokens TokenSource, httpClient *http.Client, logger logging.Logger) *GmailClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GmailClient{
		accountID: accountID,
		baseURL:   defaultGmailBaseURL,
		http:      httpClient,
		tokens:    tokens,
		logger:    logging.OrNop(logger),
	}
}

// WithBaseURL points the client at a non-default endpoint.
func (c *GmailClient) WithBaseURL(base string) *GmailClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *GmailClient) Provider() model.Provider { return model.ProviderGmail }

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailListResponse struct {
	Messages      []gmailMessageRef `json:"messages"`
	NextPageToken string            `json:"nextPageToken"`
}

type gmailMessage struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"threadId"`
	InternalDate string    `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

type gmailPart struct {
	MimeType string `json:"mimeType"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

// FetchMessages lists message ids newer than the cursor, following list
// pages until the result set is exhausted, hydrates each, and returns them in
// ascending cursor order with the advanced cursor. Gmail lists newest first,
// so stopping at the first page would advance the cursor past unfetched older
// messages; every page must be drained before the cursor moves.
func (c *GmailClient) FetchMessages(ctx context.Context, cursor model.Cursor) ([]model.InboundMessage, model.Cursor, error) {
	query := url.Values{"maxResults": {strconv.Itoa(gmailPageSize)}}
	if !cursor.IsZero() {
		if secs, err := strconv.ParseInt(cursor.Primary, 10, 64); err == nil {
			query.Set("q", fmt.Sprintf("after:%d", secs))
		}
	}

	var msgs []model.InboundMessage
	hydrated := make(map[string]bool)
	for {
		var list gmailListResponse
		if err := c.get(ctx, "/users/me/messages?"+query.Encode(), &list); err != nil {
			return nil, cursor, err
		}
		for _, ref := range list.Messages {
			if hydrated[ref.ID] {
				continue
			}
			hydrated[ref.ID] = true
			var raw gmailMessage
			if err := c.get(ctx, "/users/me/messages/"+url.PathEscape(ref.ID)+"?format=full", &raw); err != nil {
				return nil, cursor, err
			}
			msg, err := normalizeGmailMessage(raw)
			if err != nil {
				c.logger.Warn("gmail(%s): skipping malformed message %s: %v", c.accountID, ref.ID, err)
				continue
			}
			msgs = append(msgs, msg)
		}
		if list.NextPageToken == "" {
			break
		}
		query.Set("pageToken", list.NextPageToken)
	}

	kept := filterAfter(model.ProviderGmail, cursor, msgs)
	sortByCursor(model.ProviderGmail, cursor, kept)
	return kept, advance(model.ProviderGmail, cursor, kept), nil
}

func (c *GmailClient) get(ctx context.Context, path string, out any) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return errors.PermissionDenied("gmail", fmt.Errorf("token: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Transient(fmt.Errorf("gmail request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(model.ProviderGmail, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gmail decode: %w", err)
	}
	return nil
}

func normalizeGmailMessage(raw gmailMessage) (model.InboundMessage, error) {
	millis, err := strconv.ParseInt(raw.InternalDate, 10, 64)
	if err != nil {
		return model.InboundMessage{}, fmt.Errorf("internalDate %q: %w", raw.InternalDate, err)
	}
	msg := model.InboundMessage{
		MessageID:     raw.ID,
		ThreadID:      raw.ThreadID,
		ReceivedAtUTC: time.UnixMilli(millis).UTC(),
		From:          gmailHeader(raw.Payload, "From"),
		Subject:       gmailHeader(raw.Payload, "Subject"),
		BodyText:      gmailBodyText(raw.Payload),
	}
	if msg.MessageID == "" {
		return model.InboundMessage{}, fmt.Errorf("missing message id")
	}
	return msg, nil
}

func gmailHeader(p gmailPart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// gmailBodyText walks the MIME tree for the first text/plain body.
func gmailBodyText(p gmailPart) string {
	if strings.HasPrefix(p.MimeType, "text/plain") && p.Body.Data != "" {
		return decodeBase64URL(p.Body.Data)
	}
	for _, part := range p.Parts {
		if body := gmailBodyText(part); body != "" {
			return body
		}
	}
	if p.Body.Data != "" {
		return decodeBase64URL(p.Body.Data)
	}
	return ""
}

func decodeBase64URL(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
