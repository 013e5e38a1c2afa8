package payments

import (
	"errors"
	"unicode/utf8"
)

// Error taxonomy for the payment subsystem. Controllers map these to HTTP
// status codes via errors.Is; services wrap them with context using
// fmt.Errorf("%w: ...").
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
	ErrInvalidInput = errors.New("invalid_input")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream_failure")
	ErrInternal     = errors.New("internal_error")
)

// maxUpstreamMessage bounds provider error text surfaced to callers.
const maxUpstreamMessage = 200

// truncate shortens provider messages before they are attached to an
// ErrUpstream so oversized or sensitive provider bodies never leak through.
// The cut lands on a rune boundary; provider messages are UTF-8.
func truncate(msg string) string {
	if len(msg) <= maxUpstreamMessage {
		return msg
	}
	cut := maxUpstreamMessage
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
