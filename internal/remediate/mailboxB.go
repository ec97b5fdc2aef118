package remediate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/inboxsentinel/core/internal/exterrors"
)

// MailboxB implements Provider against an Outlook/Graph-API-shaped hosted
// mailbox: true folders (move semantics) and categories instead of labels.
type MailboxB struct {
	HTTP     *http.Client
	BaseURL  string
	ClientID string
	Secret   string
	TenantID string
}

func NewMailboxB(clientID, secret, tenantID string) *MailboxB {
	return &MailboxB{
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		BaseURL:  "https://mailbox-b.example/api",
		ClientID: clientID,
		Secret:   secret,
		TenantID: tenantID,
	}
}

func (m *MailboxB) Name() string { return "mailbox-b" }

func (m *MailboxB) httpClient() *http.Client {
	if m.HTTP != nil {
		return m.HTTP
	}
	return http.DefaultClient
}

func (m *MailboxB) do(ctx context.Context, accessToken, method, path string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, m.BaseURL+path, &buf)
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

	switch {
	case resp.StatusCode == 404:
		// Treat "already gone" as success: trash/move on a message the
		// provider no longer has is not a remediation failure.
		return nil
	case resp.StatusCode >= 500:
		return exterrors.WithKind(fmt.Errorf("mailbox-b: server error %d", resp.StatusCode), exterrors.KindTransientDependency)
	case resp.StatusCode == 429:
		return exterrors.WithKind(fmt.Errorf("mailbox-b: rate limited"), exterrors.KindTransientDependency)
	case resp.StatusCode >= 400:
		return exterrors.WithKind(fmt.Errorf("mailbox-b: client error %d", resp.StatusCode), exterrors.KindPermanentDependency)
	}
	return nil
}

func (m *MailboxB) MoveTo(ctx context.Context, accessToken, folder, messageID string) error {
	return m.do(ctx, accessToken, http.MethodPost, fmt.Sprintf("/messages/%s/move", url.PathEscape(messageID)), map[string]string{
		"destinationId": folder,
	})
}

func (m *MailboxB) AddLabels(ctx context.Context, accessToken, messageID string, labels []string) error {
	return m.do(ctx, accessToken, http.MethodPatch, fmt.Sprintf("/messages/%s", url.PathEscape(messageID)), map[string]interface{}{
		"categories": labels,
	})
}

func (m *MailboxB) RemoveLabels(ctx context.Context, accessToken, messageID string, labels []string) error {
	return m.do(ctx, accessToken, http.MethodPatch, fmt.Sprintf("/messages/%s", url.PathEscape(messageID)), map[string]interface{}{
		"categories": []string{},
	})
}

// Trash is idempotent the same way MailboxA's is: moving an
// already-deleted message into "deleteditems" is treated as success.
func (m *MailboxB) Trash(ctx context.Context, accessToken, messageID string) error {
	return m.MoveTo(ctx, accessToken, "deleteditems", messageID)
}

func (m *MailboxB) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{
		"client_id":     {m.ClientID},
		"client_secret": {m.Secret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
		"tenant":        {m.TenantID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/oauth2/token", bytes.NewBufferString(form.Encode()))
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
		return Token{}, exterrors.WithKind(fmt.Errorf("mailbox-b: token refresh server error %d", resp.StatusCode), exterrors.KindTransientDependency)
	}
	if resp.StatusCode >= 400 {
		return Token{}, exterrors.WithKind(fmt.Errorf("mailbox-b: token refresh rejected %d", resp.StatusCode), exterrors.KindPermanentDependency)
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
