package remediate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inboxsentinel/core/internal/resilience"
)

// Action is one remediation action the pipeline can request.
type Action string

const (
	ActionQuarantine Action = "quarantine"
	ActionRelease    Action = "release"
	ActionDelete     Action = "delete"
)

const quarantineFolder = "Quarantine"
const inboxLabel = "INBOX"

// Integration binds one tenant's mailbox connection to a Provider.
type Integration struct {
	ID       string
	TenantID string
	Provider Provider
}

// Notifier is invoked after every remediation action, successful or not, so
// a host service can alert external collaborators.
type Notifier func(entry AuditEntry)

// Remediator drives quarantine/release/delete against a Provider, refreshing
// OAuth tokens under circuit-breaker protection and writing an audit entry
// for every action.
type Remediator struct {
	Tokens   TokenStore
	Audit    AuditStore
	Breakers *resilience.Registry
	Notify   Notifier
}

func NewRemediator(tokens TokenStore, audit AuditStore, breakers *resilience.Registry) *Remediator {
	return &Remediator{Tokens: tokens, Audit: audit, Breakers: breakers}
}

func breakerName(integrationID string) string { return "remediate:" + integrationID }

// EnsureToken returns a valid access token for the integration, refreshing
// it under circuit-breaker protection if the stored one is expired.
func (r *Remediator) EnsureToken(ctx context.Context, integ Integration) (string, error) {
	tok, err := r.Tokens.Get(ctx, integ.ID)
	if err != nil {
		return "", err
	}
	if !tok.expired(time.Now()) {
		return tok.AccessToken, nil
	}

	name := breakerName(integ.ID)
	r.Breakers.GetOrCreate(resilience.BreakerConfig{Name: name})

	var refreshed Token
	err = r.Breakers.Execute(ctx, name, func(ctx context.Context) error {
		var rerr error
		refreshed, rerr = integ.Provider.RefreshToken(ctx, tok.RefreshToken)
		return rerr
	})
	if err != nil {
		return "", fmt.Errorf("remediate: refresh token for %s: %w", integ.ID, err)
	}

	if err := r.Tokens.Save(ctx, integ.ID, refreshed); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (r *Remediator) record(ctx context.Context, integ Integration, messageID string, action Action, actionErr error) {
	entry := AuditEntry{
		ID:            uuid.NewString(),
		MessageID:     messageID,
		TenantID:      integ.TenantID,
		IntegrationID: integ.ID,
		Action:        action,
		Provider:      integ.Provider.Name(),
		At:            time.Now(),
		Success:       actionErr == nil,
	}
	if actionErr != nil {
		entry.Error = actionErr.Error()
	}
	_ = r.Audit.Append(ctx, entry)
	if r.Notify != nil {
		r.Notify(entry)
	}
}

// Quarantine moves messageID to the Quarantine folder/label and removes the
// inbox label.
func (r *Remediator) Quarantine(ctx context.Context, integ Integration, messageID string) error {
	err := r.doAction(ctx, integ, func(token string) error {
		if err := integ.Provider.MoveTo(ctx, token, quarantineFolder, messageID); err != nil {
			return err
		}
		return integ.Provider.RemoveLabels(ctx, token, messageID, []string{inboxLabel})
	})
	r.record(ctx, integ, messageID, ActionQuarantine, err)
	return err
}

// Release reverses Quarantine: moves the message back to the inbox label
// and removes the Quarantine marker.
func (r *Remediator) Release(ctx context.Context, integ Integration, messageID string) error {
	err := r.doAction(ctx, integ, func(token string) error {
		if err := integ.Provider.MoveTo(ctx, token, inboxLabel, messageID); err != nil {
			return err
		}
		return integ.Provider.RemoveLabels(ctx, token, messageID, []string{quarantineFolder})
	})
	r.record(ctx, integ, messageID, ActionRelease, err)
	return err
}

// Delete moves messageID to the provider's trash-equivalent.
func (r *Remediator) Delete(ctx context.Context, integ Integration, messageID string) error {
	err := r.doAction(ctx, integ, func(token string) error {
		return integ.Provider.Trash(ctx, token, messageID)
	})
	r.record(ctx, integ, messageID, ActionDelete, err)
	return err
}

func (r *Remediator) doAction(ctx context.Context, integ Integration, fn func(token string) error) error {
	token, err := r.EnsureToken(ctx, integ)
	if err != nil {
		return err
	}
	return fn(token)
}

// AutoRemediate is invoked by the pipeline when a verdict warrants action:
// "block" deletes the message, "quarantine" quarantines it. Any other
// verdict is a no-op.
func (r *Remediator) AutoRemediate(ctx context.Context, integ Integration, messageID, verdict string) error {
	switch verdict {
	case "block":
		return r.Delete(ctx, integ, messageID)
	case "quarantine":
		return r.Quarantine(ctx, integ, messageID)
	default:
		return nil
	}
}
