package authspf

import "github.com/emersion/go-msgauth/authres"

var resultValues = map[Result]authres.ResultValue{
	Pass:      authres.ResultPass,
	Fail:      authres.ResultFail,
	SoftFail:  authres.ResultSoftFail,
	Neutral:   authres.ResultNeutral,
	None:      authres.ResultNone,
	TempError: authres.ResultTempError,
	PermError: authres.ResultPermError,
}

// Authres renders an EvalResult as an Authentication-Results SPF field, the
// same shape the teacher's internal/check/spf produces for its own SPF
// checks, so a host service can emit an Authentication-Results header
// without re-deriving it from the plain Result string.
func (r EvalResult) Authres(mailFrom, helo string) *authres.SPFResult {
	val, ok := resultValues[r.Result]
	if !ok {
		val = authres.ResultNone
	}
	return &authres.SPFResult{
		Value: val,
		From:  mailFrom,
		Helo:  helo,
	}
}
