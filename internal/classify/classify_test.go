package classify

import (
	"testing"

	"github.com/inboxsentinel/core/internal/email"
)

func TestLookupSender_ExactAndAutoClass(t *testing.T) {
	reg := NewRegistry([]SenderInfo{
		{Domain: "shop.example", Category: CategoryRetail},
	})

	if s := reg.LookupSender("a@shop.example", "shop.example"); s == nil || s.Category != CategoryRetail {
		t.Fatalf("expected exact match, got %+v", s)
	}
	if s := reg.LookupSender("a@irs.gov", "irs.gov"); s == nil || s.Category != CategoryTransactional {
		t.Fatalf("expected .gov auto-class, got %+v", s)
	}
	if s := reg.LookupSender("a@unknown.invalid", "unknown.invalid"); s != nil {
		t.Fatalf("expected no match, got %+v", s)
	}
}

func TestLookupSender_ParentDomain(t *testing.T) {
	reg := NewRegistry([]SenderInfo{
		{Domain: "example.com", Category: CategoryMarketing},
	})

	s := reg.LookupSender("a@newsletter.mail.example.com", "newsletter.mail.example.com")
	if s == nil || s.Category != CategoryMarketing {
		t.Fatalf("expected parent-domain match, got %+v", s)
	}
}

func TestClassifyEmailType_MarketingByRegistry(t *testing.T) {
	reg := NewRegistry([]SenderInfo{{Domain: "shop.example", Category: CategoryRetail}})
	msg := &email.ParsedEmail{From: email.From{Address: "deals@shop.example", Domain: "shop.example"}, Subject: "50% off today"}

	c := ClassifyEmailType(reg, msg)
	if c.Type != TypeMarketing {
		t.Fatalf("expected marketing, got %s", c.Type)
	}
	if c.ThreatScoreModifier != 0.3 {
		t.Fatalf("expected modifier 0.3 for known retail sender, got %v", c.ThreatScoreModifier)
	}
	if !c.SkipGiftCardDetection {
		t.Fatal("expected SkipGiftCardDetection for retail sender")
	}
}

func TestClassifyEmailType_MarketingByContent(t *testing.T) {
	msg := &email.ParsedEmail{
		From:    email.From{Address: "a@unknown.invalid", Domain: "unknown.invalid"},
		Subject: "Big sale!",
		Headers: map[string]string{"List-Unsubscribe": "<mailto:unsub@unknown.invalid>"},
		Body: email.Body{
			HTML: `<a href="#">unsubscribe</a> view this email in your browser <img width="1" height="1"> facebook.com/us 20% off © 2026 privacy terms contact`,
		},
	}

	c := ClassifyEmailType(nil, msg)
	if c.Type != TypeMarketing {
		t.Fatalf("expected marketing by content, got %s (conf=%v)", c.Type, c.Confidence)
	}
}

func TestClassifyEmailType_TransactionalSubject(t *testing.T) {
	msg := &email.ParsedEmail{From: email.From{Address: "a@shipper.invalid", Domain: "shipper.invalid"}, Subject: "Your order confirmation #1234"}
	c := ClassifyEmailType(nil, msg)
	if c.Type != TypeTransactional {
		t.Fatalf("expected transactional, got %s", c.Type)
	}
	if c.ThreatScoreModifier != 0.6 {
		t.Fatalf("expected modifier 0.6, got %v", c.ThreatScoreModifier)
	}
}

func TestClassifyEmailType_AutomatedSender(t *testing.T) {
	msg := &email.ParsedEmail{From: email.From{Address: "no-reply@app.invalid", Domain: "app.invalid"}, Subject: "System notice"}
	c := ClassifyEmailType(nil, msg)
	if c.Type != TypeAutomated {
		t.Fatalf("expected automated, got %s", c.Type)
	}
}

func TestClassifyEmailType_PersonalConversational(t *testing.T) {
	msg := &email.ParsedEmail{
		From:    email.From{Address: "friend@personal.invalid", Domain: "personal.invalid"},
		Subject: "Re: dinner tonight?",
		Body:    email.Body{Text: "Hey, are we still on for dinner?"},
	}
	c := ClassifyEmailType(nil, msg)
	if c.Type != TypePersonal {
		t.Fatalf("expected personal, got %s", c.Type)
	}
	if c.ThreatScoreModifier != 1.0 {
		t.Fatalf("expected modifier 1.0 for personal, got %v", c.ThreatScoreModifier)
	}
}
