package protocol

import "encoding/json"

// WebSocket close codes used by the bridge.
const (
	// CloseNormal is the normal-closure code and the substitution target for
	// any illegal requested code.
	CloseNormal = 1000
	// CloseServerError signals missing configuration or a claims/signing
	// failure.
	CloseServerError = 1011
	// CloseUnauthorized signals a protocol violation: an operation frame
	// arrived before connection_init.
	CloseUnauthorized = 4401
)

// fallbackReason is used when a requested close reason is not a string.
const fallbackReason = "connection closed"

// reserved close codes that peers must not send programmatically.
var reservedCodes = map[int]struct{}{
	1005: {},
	1006: {},
	1015: {},
}

// CloseDirective is a requested (code, reason) pair, possibly illegal for the
// transport. It is what the application layer asks for; SanitizeClose decides
// what actually goes on the wire.
type CloseDirective struct {
	Code   int
	Reason string
}

// SanitizeClose normalizes a close code/reason pair into a value legal for
// the WebSocket transport: a code in [1000,4999] excluding the reserved
// 1005/1006/1015 values. Illegal codes become CloseNormal with the reason
// kept. Legal codes pass through unchanged.
func SanitizeClose(code int, reason string) CloseDirective {
	if code < 1000 || code > 4999 {
		return CloseDirective{Code: CloseNormal, Reason: reason}
	}
	if _, bad := reservedCodes[code]; bad {
		return CloseDirective{Code: CloseNormal, Reason: reason}
	}
	return CloseDirective{Code: code, Reason: reason}
}

// SanitizeCloseRaw normalizes wire-derived close values whose types are not
// trustworthy: codes may arrive as JSON numbers, strings, or null, and
// reasons as non-strings. Anything that is not an integral number in the
// legal range collapses to CloseNormal; a non-string reason collapses to a
// generic fallback.
func SanitizeCloseRaw(code, reason any) CloseDirective {
	reasonStr, ok := reason.(string)
	if !ok {
		reasonStr = fallbackReason
	}

	n, ok := numericCode(code)
	if !ok {
		return CloseDirective{Code: CloseNormal, Reason: reasonStr}
	}
	return SanitizeClose(n, reasonStr)
}

// numericCode coerces the loosely-typed representations a JSON decoder can
// produce for a close code. Non-integral floats are rejected.
func numericCode(code any) (int, bool) {
	switch v := code.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
