package provider

import (
	"context"
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
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	outlookPageSize     = 50
)

// OutlookClient reads an Outlook mailbox through the Microsoft Graph API.
// Fetches filter on receivedDateTime ge cursor-primary; the boundary overlap
// is filtered out locally.
type OutlookClient struct {
	accountID string
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	logger    logging.Logger
}

// NewOutlookClient builds a client for one account.
func NewOutlookClient(accountID string, tokens TokenSource, httpClient *http.Client, logger logging.Logger) *OutlookClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OutlookClient{
		accountID: accountID,
		baseURL:   defaultGraphBaseURL,
		http:      httpClient,
		tokens:    tokens,
		logger:    logging.OrNop(logger),
	}
}

// WithBaseURL points the client at a non-default endpoint.
func (c *OutlookClient) WithBaseURL(base string) *OutlookClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *OutlookClient) Provider() model.Provider { return model.ProviderOutlook }

type graphMessageList struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	ID               string `json:"id"`
	ConversationID   string `json:"conversationId"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Subject          string `json:"subject"`
	BodyPreview      string `json:"bodyPreview"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

// FetchMessages lists messages received at or after the cursor primary,
// following @odata.nextLink pages until the result set is exhausted, and
// returns them oldest first with the advanced cursor. Stopping at the first
// page would advance the cursor past unfetched messages.
func (c *OutlookClient) FetchMessages(ctx context.Context, cursor model.Cursor) ([]model.InboundMessage, model.Cursor, error) {
	query := url.Values{
		"$orderby": {"receivedDateTime asc"},
		"$top":     {strconv.Itoa(outlookPageSize)},
		"$select":  {"id,conversationId,receivedDateTime,subject,from,body,bodyPreview"},
	}
	if !cursor.IsZero() {
		query.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", cursor.Primary))
	}

	var msgs []model.InboundMessage
	seen := make(map[string]bool)
	next := "/me/messages?" + query.Encode()
	for next != "" {
		var list graphMessageList
		if err := c.get(ctx, next, &list); err != nil {
			return nil, cursor, err
		}
		for _, raw := range list.Value {
			if seen[raw.ID] {
				continue
			}
			seen[raw.ID] = true
			msg, err := normalizeGraphMessage(raw)
			if err != nil {
				c.logger.Warn("outlook(%s): skipping malformed message %s: %v", c.accountID, raw.ID, err)
				continue
			}
			msgs = append(msgs, msg)
		}
		next = list.NextLink
	}

	kept := filterAfter(model.ProviderOutlook, cursor, msgs)
	sortByCursor(model.ProviderOutlook, cursor, kept)
	return kept, advance(model.ProviderOutlook, cursor, kept), nil
}

// get fetches one Graph resource. path is either a path relative to the
// base URL or an absolute URL, as Graph hands back in @odata.nextLink.
func (c *OutlookClient) get(ctx context.Context, path string, out any) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return errors.PermissionDenied("outlook", fmt.Errorf("token: %w", err))
	}

	target := path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Transient(fmt.Errorf("outlook request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(model.ProviderOutlook, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("outlook decode: %w", err)
	}
	return nil
}

func normalizeGraphMessage(raw graphMessage) (model.InboundMessage, error) {
	if raw.ID == "" {
		return model.InboundMessage{}, fmt.Errorf("missing message id")
	}
	received, err := time.Parse(time.RFC3339, raw.ReceivedDateTime)
	if err != nil {
		return model.InboundMessage{}, fmt.Errorf("receivedDateTime %q: %w", raw.ReceivedDateTime, err)
	}

	body := raw.Body.Content
	if strings.EqualFold(raw.Body.ContentType, "html") || body == "" {
		body = raw.BodyPreview
	}

	return model.InboundMessage{
		MessageID:     raw.ID,
		ThreadID:      raw.ConversationID,
		ReceivedAtUTC: received.UTC(),
		From:          raw.From.EmailAddress.Address,
		Subject:       raw.Subject,
		BodyText:      body,
	}, nil
}
