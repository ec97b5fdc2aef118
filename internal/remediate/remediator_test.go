package remediate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inboxsentinel/core/internal/resilience"
)

type fakeProvider struct {
	name           string
	moved          []string
	added          []string
	removed        []string
	trashed        []string
	refreshCalls   int
	refreshErr     error
	refreshedToken Token
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) MoveTo(ctx context.Context, accessToken, folder, messageID string) error {
	f.moved = append(f.moved, folder+":"+messageID)
	return nil
}

func (f *fakeProvider) AddLabels(ctx context.Context, accessToken, messageID string, labels []string) error {
	f.added = append(f.added, labels...)
	return nil
}

func (f *fakeProvider) RemoveLabels(ctx context.Context, accessToken, messageID string, labels []string) error {
	f.removed = append(f.removed, labels...)
	return nil
}

func (f *fakeProvider) Trash(ctx context.Context, accessToken, messageID string) error {
	f.trashed = append(f.trashed, messageID)
	return nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return Token{}, f.refreshErr
	}
	return f.refreshedToken, nil
}

func newTestRemediator() (*Remediator, *MemTokenStore, *MemAuditStore) {
	tokens := NewMemTokenStore()
	audit := NewMemAuditStore()
	r := NewRemediator(tokens, audit, resilience.NewRegistry())
	return r, tokens, audit
}

func TestRemediator_QuarantineMovesAndRemovesInboxLabel(t *testing.T) {
	r, tokens, audit := newTestRemediator()
	provider := &fakeProvider{name: "mailbox-a"}
	integ := Integration{ID: "integ-1", TenantID: "tenant-1", Provider: provider}
	tokens.Save(context.Background(), integ.ID, Token{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})

	if err := r.Quarantine(context.Background(), integ, "msg-1"); err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if len(provider.moved) != 1 || provider.moved[0] != "Quarantine:msg-1" {
		t.Fatalf("expected move to Quarantine, got %v", provider.moved)
	}
	if len(provider.removed) != 1 || provider.removed[0] != inboxLabel {
		t.Fatalf("expected inbox label removed, got %v", provider.removed)
	}

	entries, _ := audit.ListByMessage(context.Background(), "msg-1")
	if len(entries) != 1 || entries[0].Action != ActionQuarantine || !entries[0].Success {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestRemediator_RefreshesExpiredTokenUnderBreaker(t *testing.T) {
	r, tokens, _ := newTestRemediator()
	provider := &fakeProvider{
		name:           "mailbox-a",
		refreshedToken: Token{AccessToken: "new-token", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour)},
	}
	integ := Integration{ID: "integ-2", TenantID: "tenant-1", Provider: provider}
	tokens.Save(context.Background(), integ.ID, Token{AccessToken: "expired", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute)})

	if err := r.Delete(context.Background(), integ, "msg-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if provider.refreshCalls != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", provider.refreshCalls)
	}

	stored, err := tokens.Get(context.Background(), integ.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.AccessToken != "new-token" {
		t.Fatalf("expected refreshed token to be persisted, got %q", stored.AccessToken)
	}
}

func TestRemediator_RefreshFailureSurfacesAndAudits(t *testing.T) {
	r, tokens, audit := newTestRemediator()
	refreshErr := errors.New("invalid_grant")
	provider := &fakeProvider{name: "mailbox-b", refreshErr: refreshErr}
	integ := Integration{ID: "integ-3", TenantID: "tenant-1", Provider: provider}
	tokens.Save(context.Background(), integ.ID, Token{AccessToken: "expired", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute)})

	err := r.Quarantine(context.Background(), integ, "msg-3")
	if err == nil {
		t.Fatal("expected error when token refresh fails")
	}

	entries, _ := audit.ListByMessage(context.Background(), "msg-3")
	if len(entries) != 1 || entries[0].Success {
		t.Fatalf("expected one failed audit entry, got %+v", entries)
	}
}

func TestRemediator_AutoRemediateDispatchesByVerdict(t *testing.T) {
	r, tokens, _ := newTestRemediator()
	provider := &fakeProvider{name: "mailbox-a"}
	integ := Integration{ID: "integ-4", TenantID: "tenant-1", Provider: provider}
	tokens.Save(context.Background(), integ.ID, Token{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})

	if err := r.AutoRemediate(context.Background(), integ, "msg-4", "block"); err != nil {
		t.Fatalf("AutoRemediate block: %v", err)
	}
	if len(provider.trashed) != 1 {
		t.Fatalf("expected trash for block verdict, got %v", provider.trashed)
	}

	if err := r.AutoRemediate(context.Background(), integ, "msg-5", "allow"); err != nil {
		t.Fatalf("AutoRemediate allow should be a no-op, got error: %v", err)
	}
	if len(provider.trashed) != 1 {
		t.Fatal("expected allow verdict to not trigger any action")
	}
}

func TestRemediator_TrashIsIdempotent(t *testing.T) {
	r, tokens, _ := newTestRemediator()
	provider := &fakeProvider{name: "mailbox-a"}
	integ := Integration{ID: "integ-5", TenantID: "tenant-1", Provider: provider}
	tokens.Save(context.Background(), integ.ID, Token{AccessToken: "live", ExpiresAt: time.Now().Add(time.Hour)})

	if err := r.Delete(context.Background(), integ, "msg-6"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := r.Delete(context.Background(), integ, "msg-6"); err != nil {
		t.Fatalf("repeated Delete of an already-trashed message must not fail: %v", err)
	}
}
