package authz

// Reason classifies why a request was denied.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonRoleInsufficient   Reason = "role_insufficient"
	ReasonAttributeMismatch  Reason = "attribute_mismatch"
	ReasonGrantScopeExceeded Reason = "grant_scope_exceeded"
	ReasonGrantExpired       Reason = "grant_expired"
)

// Decision is the outcome of one authorization evaluation. Detail is
// safe to return to the caller; it names the rule, not the data.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason Reason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}
