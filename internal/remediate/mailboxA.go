package remediate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/inboxsentinel/core/internal/exterrors"
)

// MailboxA implements Provider against a Gmail-API-shaped hosted mailbox:
// labels instead of folders, a single "trash" endpoint, and a standard
// OAuth2 refresh-token grant.
type MailboxA struct {
	HTTP     *http.Client
	BaseURL  string
	ClientID string
	Secret   string
}

func NewMailboxA(clientID, secret string) *MailboxA {
	return &MailboxA{
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		BaseURL:  "https://mailbox-a.example/api",
		ClientID: clientID,
		Secret:   secret,
	}
}

func (m *MailboxA) Name() string { return "mailbox-a" }

func (m *MailboxA) httpClient() *http.Client {
	if m.HTTP != nil {
		return m.HTTP
	}
	return http.DefaultClient
}

func (m *MailboxA) do(ctx context.Context, accessToken, method, path string, body interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return exterrors.WithKind(err, exterrors.KindTransientDependency)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return exterrors.WithKind(fmt.Errorf("mailbox-a: server error %d", resp.StatusCode), exterrors.KindTransientDependency)
	}
	if resp.StatusCode == 429 {
		return exterrors.WithKind(fmt.Errorf("mailbox-a: rate limited"), exterrors.KindTransientDependency)
	}
	if resp.StatusCode >= 400 {
		return exterrors.WithKind(fmt.Errorf("mailbox-a: client error %d", resp.StatusCode), exterrors.KindPermanentDependency)
	}
	return nil
}

func (m *MailboxA) MoveTo(ctx context.Context, accessToken, folder, messageID string) error {
	return m.AddLabels(ctx, accessToken, messageID, []string{folder})
}

func (m *MailboxA) AddLabels(ctx context.Context, accessToken, messageID string, labels []string) error {
	return m.do(ctx, accessToken, http.MethodPost, fmt.Sprintf("/messages/%s/modify", url.PathEscape(messageID)), map[string]interface{}{
		"addLabelIds": labels,
	})
}

func (m *MailboxA) RemoveLabels(ctx context.Context, accessToken, messageID string, labels []string) error {
	return m.do(ctx, accessToken, http.MethodPost, fmt.Sprintf("/messages/%s/modify", url.PathEscape(messageID)), map[string]interface{}{
		"removeLabelIds": labels,
	})
}

// Trash is idempotent: the backend treats trashing an already-trashed
// message as a success, so the remediator never needs to special-case it.
func (m *MailboxA) Trash(ctx context.Context, accessToken, messageID string) error {
	return m.do(ctx, accessToken, http.MethodPost, fmt.Sprintf("/messages/%s/trash", url.PathEscape(messageID)), nil)
}

func (m *MailboxA) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{
		"client_id":     {m.ClientID},
		"client_secret": {m.Secret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/oauth/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return Token{}, exterrors.WithKind(err, exterrors.KindTransientDependency)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Token{}, exterrors.WithKind(fmt.Errorf("mailbox-a: token refresh server error %d", resp.StatusCode), exterrors.KindTransientDependency)
	}
	if resp.StatusCode >= 400 {
		return Token{}, exterrors.WithKind(fmt.Errorf("mailbox-a: token refresh rejected %d", resp.StatusCode), exterrors.KindPermanentDependency)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Token{}, exterrors.WithKind(err, exterrors.KindPermanentDependency)
	}

	return Token{
		AccessToken:  out.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}
