package authdkim

import "github.com/emersion/go-msgauth/authres"

var resultValues = map[Result]authres.ResultValue{
	Pass:      authres.ResultPass,
	Fail:      authres.ResultFail,
	Neutral:   authres.ResultNeutral,
	TempError: authres.ResultTempError,
	PermError: authres.ResultPermError,
}

// Authres renders a VerifyResult as an Authentication-Results DKIM field,
// matching the shape the teacher's internal/check/dkim produces for each
// verified signature.
func (r VerifyResult) Authres() *authres.DKIMResult {
	val, ok := resultValues[r.Result]
	if !ok {
		val = authres.ResultNone
	}
	reason := ""
	if r.Error != nil {
		reason = r.Error.Error()
	}
	return &authres.DKIMResult{
		Value:      val,
		Reason:     reason,
		Domain:     r.Domain,
		Identifier: r.Selector,
	}
}
