package authdmarc

import (
	"context"
	"testing"

	"github.com/emersion/go-msgauth/dmarc"
	"github.com/foxcpp/go-mockdns"
	"github.com/google/go-cmp/cmp"

	"github.com/inboxsentinel/core/internal/authspf"
	"github.com/inboxsentinel/core/internal/dnsresolve"
)

func TestEvaluate_TableDriven(t *testing.T) {
	rec := &dmarc.Record{Policy: dmarc.PolicyReject, SubdomainPolicy: dmarc.PolicyQuarantine}

	cases := []struct {
		name string
		in   EvalInput
		want EvalResult
	}{
		{
			name: "spf aligned relaxed",
			in: EvalInput{
				HeaderFromDomain: "example.com",
				MailFromDomain:   "example.com",
				SPFResult:        authspf.Pass,
			},
			want: EvalResult{Result: "pass", SPFAligned: true, AppliedPolicy: dmarc.PolicyReject},
		},
		{
			name: "neither aligned",
			in: EvalInput{
				HeaderFromDomain: "example.com",
				MailFromDomain:   "other.invalid",
				SPFResult:        authspf.Fail,
			},
			want: EvalResult{Result: "fail", AppliedPolicy: dmarc.PolicyReject},
		},
		{
			name: "dkim aligned, subdomain policy applied",
			in: EvalInput{
				HeaderFromDomain: "mail.example.com",
				MailFromDomain:   "other.invalid",
				DKIMResults:      []DKIMIdentity{{Domain: "example.com", Pass: true}},
			},
			want: EvalResult{Result: "pass", DKIMAligned: true, AppliedPolicy: dmarc.PolicyQuarantine},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Evaluate(c.in, rec, "example.com")
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetRecord_ExactDomain(t *testing.T) {
	zones := map[string]mockdns.Zone{
		"_dmarc.example.com.": {TXT: []string{"v=DMARC1; p=reject"}},
	}
	backend := dnsresolve.NewMockdnsBackend(zones)

	rec, foundAt, err := GetRecord(context.Background(), backend, "example.com")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}
	if foundAt != "example.com" {
		t.Fatalf("expected found at example.com, got %s", foundAt)
	}
}

func TestGetRecord_OrgDomainFallback(t *testing.T) {
	zones := map[string]mockdns.Zone{
		"_dmarc.example.com.": {TXT: []string{"v=DMARC1; p=quarantine"}},
	}
	backend := dnsresolve.NewMockdnsBackend(zones)

	rec, foundAt, err := GetRecord(context.Background(), backend, "mail.example.com")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record via org-domain fallback")
	}
	if foundAt != "example.com" {
		t.Fatalf("expected fallback to org domain, got %s", foundAt)
	}
}

func TestGetRecord_NoneFound(t *testing.T) {
	backend := dnsresolve.NewMockdnsBackend(map[string]mockdns.Zone{})

	rec, _, err := GetRecord(context.Background(), backend, "example.com")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec != nil {
		t.Fatal("expected no record")
	}
}

func TestEvaluate_SubdomainPolicy(t *testing.T) {
	zones := map[string]mockdns.Zone{
		"_dmarc.example.com.": {TXT: []string{"v=DMARC1; p=none; sp=reject"}},
	}
	backend := dnsresolve.NewMockdnsBackend(zones)

	rec, foundAt, err := GetRecord(context.Background(), backend, "mail.example.com")
	if err != nil || rec == nil {
		t.Fatalf("GetRecord: rec=%v err=%v", rec, err)
	}

	in := EvalInput{
		HeaderFromDomain: "mail.example.com",
		MailFromDomain:   "bounce.mail.example.com",
		SPFResult:        authspf.Fail,
		DKIMResults:      []DKIMIdentity{{Domain: "example.com", Pass: false}},
	}
	res := Evaluate(in, rec, foundAt)

	if res.Result != "fail" {
		t.Fatalf("expected fail (neither aligned), got %s", res.Result)
	}
	if res.AppliedPolicy != "reject" {
		t.Fatalf("expected applied policy reject (sp), got %s", res.AppliedPolicy)
	}
}

func TestEvaluate_PassViaDKIMAlignment(t *testing.T) {
	rec, _, err := GetRecord(context.Background(), dnsresolve.NewMockdnsBackend(map[string]mockdns.Zone{
		"_dmarc.example.com.": {TXT: []string{"v=DMARC1; p=reject; adkim=r"}},
	}), "example.com")
	if err != nil || rec == nil {
		t.Fatalf("GetRecord: rec=%v err=%v", rec, err)
	}

	in := EvalInput{
		HeaderFromDomain: "example.com",
		MailFromDomain:   "other.invalid",
		SPFResult:        authspf.Fail,
		DKIMResults:      []DKIMIdentity{{Domain: "example.com", Pass: true}},
	}
	res := Evaluate(in, rec, "example.com")
	if res.Result != "pass" || !res.DKIMAligned {
		t.Fatalf("expected pass via DKIM alignment, got %+v", res)
	}
}

func TestOrgDomain_CommonTwoLabelSuffix(t *testing.T) {
	if got := OrgDomain("mail.example.co.uk"); got != "example.co.uk" {
		t.Fatalf("expected example.co.uk, got %s", got)
	}
}
