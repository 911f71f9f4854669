package synckit

import (
	"context"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-merkle-sync/merkle"
	"github.com/c0deZ3R0/go-merkle-sync/replica"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SyncRequest is sent by a replica to its peer on every round.
type SyncRequest struct {
	ClientID string            `json:"clientId"`
	GroupID  string            `json:"groupId"`
	Merkle   *merkle.Trie      `json:"merkle"`
	Messages []replica.Message `json:"messages"`
}

// SyncResponse carries the messages the caller is missing and the
// responder's trie after merging the request.
type SyncResponse struct {
	Status string        `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Data   *ResponseData `json:"data,omitempty"`
}

// ResponseData is the payload of a successful SyncResponse.
type ResponseData struct {
	Messages []replica.Message `json:"messages"`
	Merkle   *merkle.Trie      `json:"merkle"`
}

// OK builds a successful response.
func OK(messages []replica.Message, trie *merkle.Trie) SyncResponse {
	if messages == nil {
		messages = []replica.Message{}
	}
	return SyncResponse{Status: StatusOK, Data: &ResponseData{Messages: messages, Merkle: trie}}
}

// Failure builds an error response.
func Failure(reason string) SyncResponse {
	return SyncResponse{Status: StatusError, Reason: reason}
}

// Transport delivers a request to the peer replica. Failing to reach the
// peer is reported as an error; a peer that answers with an error status is
// not a transport error.
type Transport interface {
	Request(ctx context.Context, req SyncRequest) (SyncResponse, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req SyncRequest) (SyncResponse, error)

func (f TransportFunc) Request(ctx context.Context, req SyncRequest) (SyncResponse, error) {
	return f(ctx, req)
}

// Responder answers sync requests. Aggregator implements it.
type Responder interface {
	Handle(ctx context.Context, req SyncRequest) SyncResponse
}

// InProcess returns a Transport calling r directly.
func InProcess(r Responder) Transport {
	return TransportFunc(func(ctx context.Context, req SyncRequest) (SyncResponse, error) {
		if err := ctx.Err(); err != nil {
			return SyncResponse{}, err
		}
		req.Messages = append([]replica.Message(nil), req.Messages...)
		return r.Handle(ctx, req), nil
	})
}

// IDGenerator issues identifiers for new rows.
type IDGenerator interface {
	Next() string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) Next() string { return f() }

// UUIDGenerator issues random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Next() string { return uuid.NewString() }

// Phase is the step of the sync state machine a Coordinator is in.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseAwaitingResponse
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}
