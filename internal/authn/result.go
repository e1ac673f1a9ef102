package authn

import (
	"errors"

	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
)

var (
	ErrMalformedPayload = errors.New("opaque payload is malformed")
	ErrUnknownToken     = errors.New("token record not found")
	ErrLookupFailed     = errors.New("token record lookup failed")
)

// Outcome classifies a single authentication attempt.
type Outcome int

const (
	OutcomeNoCredential Outcome = iota
	OutcomeSuccess
	OutcomeMalformedPayload
	OutcomeUnknownToken
	OutcomeLookupFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoCredential:
		return "no_credential"
	case OutcomeSuccess:
		return "success"
	case OutcomeMalformedPayload:
		return "malformed_payload"
	case OutcomeUnknownToken:
		return "unknown_token"
	case OutcomeLookupFailed:
		return "lookup_failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of Handler.Authenticate. Build it with Success,
// NoResult or Fail.
type Result struct {
	outcome   Outcome
	principal model.Principal
	token     opaque.Token
	err       error
}

// Success reports an authenticated principal.
func Success(principal model.Principal, token opaque.Token) Result {
	return Result{
		outcome:   OutcomeSuccess,
		principal: principal,
		token:     token,
	}
}

// NoResult reports that the request carried no usable credential.
func NoResult() Result {
	return Result{outcome: OutcomeNoCredential}
}

// Fail reports a rejected credential. token is the zero Token when the
// payload could not be opened.
func Fail(outcome Outcome, token opaque.Token, err error) Result {
	return Result{
		outcome: outcome,
		token:   token,
		err:     err,
	}
}

func (r Result) Outcome() Outcome {
	return r.outcome
}

func (r Result) Succeeded() bool {
	return r.outcome == OutcomeSuccess
}

// Principal returns the authenticated caller; ok is false unless the
// attempt succeeded.
func (r Result) Principal() (model.Principal, bool) {
	if !r.Succeeded() {
		return model.Principal{}, false
	}
	return r.principal, true
}

// Token returns the opaque token that was opened, if any.
func (r Result) Token() (opaque.Token, bool) {
	if r.token == (opaque.Token{}) {
		return opaque.Token{}, false
	}
	return r.token, true
}

// Err returns the internal failure reason. It must not be shown to callers.
func (r Result) Err() error {
	return r.err
}
