package classify

import (
	"regexp"
	"strings"

	"github.com/inboxsentinel/core/internal/email"
)

// EmailType is the inferred category gating threat-score modulation.
type EmailType string

const (
	TypeMarketing     EmailType = "marketing"
	TypeTransactional EmailType = "transactional"
	TypeAutomated     EmailType = "automated"
	TypePersonal      EmailType = "personal"
	TypeUnknown       EmailType = "unknown"
)

// Classification is the C5 classifyEmailType() result.
type Classification struct {
	Type                  EmailType
	Confidence            float64
	ThreatScoreModifier   float64
	SkipBECDetection      bool
	SkipGiftCardDetection bool
}

var (
	transactionalSubjectRe = regexp.MustCompile(`(?i)\b(order|invoice|receipt|confirmation|shipped|delivery|payment|statement|password reset|verify your|account (update|alert))\b`)
	automatedSubjectRe     = regexp.MustCompile(`(?i)\b(no-?reply|automated|notification|alert|digest|do not reply)\b`)
	conversationalRe       = regexp.MustCompile(`(?i)^(re|fw|fwd):`)
	greetingRe             = regexp.MustCompile(`(?i)\b(hi|hello|hey|dear)\b`)
	unsubscribeLinkRe      = regexp.MustCompile(`(?i)unsubscribe`)
	viewInBrowserRe        = regexp.MustCompile(`(?i)view (this )?(email|message) in (your )?browser`)
	trackingPixelRe        = regexp.MustCompile(`(?i)width=["']?1["']?\s+height=["']?1["']?`)
	socialMediaURLRe       = regexp.MustCompile(`(?i)(facebook\.com|twitter\.com|x\.com|instagram\.com|linkedin\.com)/`)
	discountLanguageRe     = regexp.MustCompile(`(?i)\b(% off|discount|promo code|limited time|sale ends|coupon)\b`)
	legalFooterCopyrightRe = regexp.MustCompile(`©\s*\d{4}`)
	legalFooterKeywordsRe  = regexp.MustCompile(`(?i)\b(privacy|terms|contact)\b`)
)

var bulkMailHeaders = []string{"list-unsubscribe", "feedback-id", "x-campaign", "x-campaign-id", "x-mailer-campaign", "precedence"}

// classifyByRegistry maps a sender category to an EmailType, per the C5
// category table.
func classifyByRegistry(category Category) (EmailType, float64, bool) {
	switch category {
	case CategoryRetail, CategoryEcommerce, CategoryMarketing:
		return TypeMarketing, 0.85, true
	case CategoryTransactional, CategoryFinancial:
		return TypeTransactional, 0.85, true
	case CategorySaaS, CategoryAutomated:
		return TypeAutomated, 0.85, true
	case CategoryTrusted:
		return TypePersonal, 0.85, true
	default:
		return TypeUnknown, 0, false
	}
}

// marketingSignals counts the content-based signals RFC-unspecified but
// practically reliable markers of bulk marketing mail. It returns the count
// and whether List-Unsubscribe (the strongest single signal) was present.
func marketingSignals(msg *email.ParsedEmail) (count int, hasListUnsubscribe bool) {
	body := msg.Body.HTML + "\n" + msg.Body.Text

	if _, ok := msg.Header("List-Unsubscribe"); ok {
		count++
		hasListUnsubscribe = true
	}
	if unsubscribeLinkRe.MatchString(body) {
		count++
	}
	if viewInBrowserRe.MatchString(body) {
		count++
	}
	if trackingPixelRe.MatchString(msg.Body.HTML) {
		count++
	}
	if socialMediaURLRe.MatchString(body) {
		count++
	}
	if discountLanguageRe.MatchString(body) {
		count++
	}
	for _, h := range bulkMailHeaders {
		if _, ok := msg.Header(h); ok {
			count++
			break
		}
	}
	if legalFooterCopyrightRe.MatchString(body) && legalFooterKeywordsRe.MatchString(body) {
		count++
	}

	return count, hasListUnsubscribe
}

// marketingConfidence turns a signal count into a confidence in [0,1]: each
// signal adds 0.15, List-Unsubscribe (the strongest single signal) adds a
// further 0.15, and the sum is capped at 1. Five signals reach the 0.7
// marketing threshold.
func marketingConfidence(count int, hasListUnsubscribe bool) float64 {
	if hasListUnsubscribe {
		count++
	}
	conf := float64(count) * 0.15
	if conf > 1 {
		conf = 1
	}
	return conf
}

// ClassifyEmailType runs the C5 pipeline: sender-registry category first,
// then the marketing-signal detector (confidence >= 0.7), then the
// transactional and automated subject/sender checks, then a conversational
// fallback.
func ClassifyEmailType(registry *Registry, msg *email.ParsedEmail) Classification {
	var info *SenderInfo
	if registry != nil {
		info = registry.LookupSender(msg.From.Address, msg.From.Domain)
	}

	if info != nil {
		t, confidence, _ := classifyByRegistry(info.Category)
		if t != TypeUnknown {
			return finalize(t, confidence, info.Category, 0)
		}
	}

	signalCount, hasListUnsubscribe := marketingSignals(msg)
	conf := marketingConfidence(signalCount, hasListUnsubscribe)

	if conf >= 0.7 {
		return finalize(TypeMarketing, conf, "", signalCount)
	}
	if transactionalSubjectRe.MatchString(msg.Subject) {
		return finalize(TypeTransactional, 0.75, "", signalCount)
	}
	if automatedSubjectRe.MatchString(msg.Subject) || isAutomatedSender(msg.From.Address) {
		return finalize(TypeAutomated, 0.7, "", signalCount)
	}
	if conversationalRe.MatchString(msg.Subject) || (greetingRe.MatchString(msg.Body.Text) && !hasListUnsubscribe) {
		return finalize(TypePersonal, 0.6, "", signalCount)
	}

	return finalize(TypeUnknown, 0.3, "", signalCount)
}

func isAutomatedSender(address string) bool {
	local := strings.SplitN(address, "@", 2)[0]
	local = strings.ToLower(local)
	return strings.Contains(local, "noreply") || strings.Contains(local, "no-reply") || strings.Contains(local, "donotreply")
}

// finalize applies the threatScoreModifier table and the skip-gate rules.
func finalize(t EmailType, confidence float64, category Category, marketingSignalCount int) Classification {
	modifier := threatScoreModifier(t, category, marketingSignalCount)

	return Classification{
		Type:                  t,
		Confidence:            confidence,
		ThreatScoreModifier:   modifier,
		SkipBECDetection:      t == TypeMarketing || t == TypeTransactional,
		SkipGiftCardDetection: t == TypeMarketing || category == CategoryRetail || category == CategoryEcommerce,
	}
}

func threatScoreModifier(t EmailType, category Category, marketingSignalCount int) float64 {
	if category == CategoryTrusted {
		return 0.2
	}
	switch t {
	case TypeMarketing:
		if category == CategoryRetail || category == CategoryEcommerce || category == CategoryMarketing {
			return 0.3
		}
		if marketingSignalCount >= 4 {
			return 0.4
		}
		return 0.5
	case TypeTransactional:
		return 0.6
	case TypeAutomated:
		return 0.7
	default:
		return 1.0
	}
}
