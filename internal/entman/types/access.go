package types

import (
	"fmt"
	"strings"
)

// Outcome is the binary result of verifying a token.
type Outcome string

const (
	Success Outcome = "Success"
	Failure Outcome = "Failure"
)

// ParseOutcome accepts "Success" or "Failure" in any letter case.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return Success, nil
	case "failure":
		return Failure, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

func (o Outcome) Valid() bool { return o == Success || o == Failure }

// AccessResponse is the decision payload produced by an identity verifier.
// Name and Reason are verifier-defined and never interpreted by the gate.
type AccessResponse struct {
	Outcome Outcome `json:"outcome"`
	Name    string  `json:"name,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Clone returns an independent copy of r.
func (r AccessResponse) Clone() AccessResponse {
	return AccessResponse{Outcome: r.Outcome, Name: r.Name, Reason: r.Reason}
}

func (r AccessResponse) Granted() bool { return r.Outcome == Success }

// AccessRequest is the JSON body accepted as an alternative to the token
// query parameter. Token is nil when the body does not carry one.
type AccessRequest struct {
	Token *string `json:"token"`
}
