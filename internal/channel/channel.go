package channel

import (
	"fmt"

	"devid/internal/domain"
	"devid/internal/logging"
)

// MethodMakeClaim is the only method the channel implements.
const MethodMakeClaim = "makeClaim"

// Request is a single call on the channel.
type Request struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

// Error is the failure half of a Response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is exactly one of a result, an error, or not-implemented.
type Response struct {
	Result         map[string]any `json:"result,omitempty"`
	Error          *Error         `json:"error,omitempty"`
	NotImplemented bool           `json:"notImplemented,omitempty"`
}

// OK reports whether the response carries a result.
func (r Response) OK() bool { return r.Error == nil && !r.NotImplemented }

// ClaimMaker is the part of the identity service the channel needs.
type ClaimMaker interface {
	MakeClaimPayload() (domain.DeviceClaim, error)
}

// Handler dispatches channel requests.
type Handler struct {
	claims ClaimMaker
}

// NewHandler returns a Handler that serves claims from c.
func NewHandler(c ClaimMaker) *Handler { return &Handler{claims: c} }

// Handle serves one request.
func (h *Handler) Handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("channel %s panicked: %v", req.Method, r)
			resp = errorResponse(fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch req.Method {
	case MethodMakeClaim:
		return h.makeClaim()
	default:
		logging.Debugf("channel method %q not implemented", req.Method)
		return Response{NotImplemented: true}
	}
}

func (h *Handler) makeClaim() Response {
	claim, err := h.claims.MakeClaimPayload()
	if err != nil {
		logging.Errorf("makeClaim failed: %v", err)
		return errorResponse(err.Error())
	}
	return Response{Result: ClaimMap(claim)}
}

// ClaimMap renders a claim with the channel's field names.
func ClaimMap(c domain.DeviceClaim) map[string]any {
	return map[string]any{
		"deviceId":  c.DeviceID,
		"publicKey": c.PublicKeyPEM,
		"nonce":     c.Nonce,
		"signature": c.Signature,
		"alg":       c.Algorithm,
		"timestamp": c.Timestamp,
	}
}

func errorResponse(msg string) Response {
	if msg == "" {
		msg = "failed to build claim"
	}
	return Response{Error: &Error{Code: domain.ClaimErrorCode, Message: msg}}
}
