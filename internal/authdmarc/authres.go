package authdmarc

import "github.com/emersion/go-msgauth/authres"

// Authres renders an EvalResult as an Authentication-Results DMARC field,
// matching the shape the teacher's internal/dmarc.EvaluateAlignment
// produces.
func (r EvalResult) Authres(fromDomain string) *authres.DMARCResult {
	val := authres.ResultFail
	if r.Result == "pass" {
		val = authres.ResultPass
	}
	return &authres.DMARCResult{
		Value: val,
		From:  fromDomain,
	}
}
