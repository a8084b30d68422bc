package websocket

import "net"

// RejectReason enumerates the decision outcomes of spec.md §4.8.
type RejectReason int

const (
	Success RejectReason = iota
	IPBlocked
	IPNotAllowed
	NoToken
	InvalidToken
	InternalError
)

// Validator checks a token extracted from the upgrade request's query
// string; a non-nil error means the token is rejected.
type Validator func(token string) error

// AuthPolicy gates a WebSocket upgrade on token + IP policy, per
// spec.md §4.8.
type AuthPolicy struct {
	EnableTokenAuth bool
	TokenParamName  string
	Validator       Validator

	EnableIPWhitelist bool
	Whitelist         []string
	EnableIPBlacklist bool
	Blacklist         []string

	SendFailedResponse bool
	FailedMessage      string
}

// Decide evaluates the auth policy against the client IP and the token
// value extracted from the upgrade request's query parameters, in the
// exact order spec.md §4.8 specifies.
func (p *AuthPolicy) Decide(clientIP string, queryParam func(name string) (string, bool)) RejectReason {
	if p.EnableIPBlacklist && matchesAny(clientIP, p.Blacklist) {
		return IPBlocked
	}
	if p.EnableIPWhitelist && !matchesAny(clientIP, p.Whitelist) {
		return IPNotAllowed
	}
	if p.EnableTokenAuth {
		name := p.TokenParamName
		if name == "" {
			name = "token"
		}
		token, ok := queryParam(name)
		if !ok || token == "" {
			return NoToken
		}
		if p.Validator == nil {
			return InternalError
		}
		if err := p.Validator(token); err != nil {
			return InvalidToken
		}
	}
	return Success
}

// FailureStatus maps a rejection reason to the HTTP status the server
// should respond with when SendFailedResponse is set: 401 for token
// failures, 403 for IP failures.
func FailureStatus(reason RejectReason) int {
	switch reason {
	case NoToken, InvalidToken, InternalError:
		return 401
	case IPBlocked, IPNotAllowed:
		return 403
	default:
		return 200
	}
}

func matchesAny(ip string, patterns []string) bool {
	candidate := net.ParseIP(ip)
	if candidate == nil {
		return false
	}
	for _, pattern := range patterns {
		if _, network, err := net.ParseCIDR(pattern); err == nil {
			if network.Contains(candidate) {
				return true
			}
			continue
		}
		if parsed := net.ParseIP(pattern); parsed != nil && parsed.Equal(candidate) {
			return true
		}
	}
	return false
}
