package solana

import (
	"encoding/json"
	"fmt"
)

// FrameKind tags a decoded upstream WebSocket frame.
type FrameKind int

// Known frame kinds.
const (
	FrameUnknown FrameKind = iota
	FrameAck
	FrameLogs
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameAck:
		return "ack"
	case FrameLogs:
		return "logs"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one decoded upstream message. The field matching Kind is set,
// the others are nil.
type Frame struct {
	Kind  FrameKind
	Ack   *SubscribeAck
	Logs  *LogNotification
	Error *FrameErr
}

// SubscribeAck is the provider's response to a subscribe request.
type SubscribeAck struct {
	RequestID      uint64
	SubscriptionID int64
}

// FrameErr is a JSON-RPC error answering a request.
type FrameErr struct {
	RequestID uint64
	RPCError
}

// DecodeFrame decodes a raw upstream message into one of the known variants.
// Well-formed JSON of an unrecognized shape yields FrameUnknown; only
// malformed JSON returns an error.
func DecodeFrame(data []byte) (Frame, error) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	switch {
	case env.Method == "logsNotification":
		if len(env.Params) == 0 {
			return Frame{Kind: FrameUnknown}, nil
		}
		var params wsNotificationParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return Frame{}, fmt.Errorf("decode logs notification: %w", err)
		}
		return Frame{Kind: FrameLogs, Logs: params.toNotification()}, nil

	case env.Method != "":
		return Frame{Kind: FrameUnknown}, nil

	case env.Error != nil:
		fe := &FrameErr{RPCError: *env.Error}
		if env.ID != nil {
			fe.RequestID = *env.ID
		}
		return Frame{Kind: FrameError, Error: fe}, nil

	case env.ID != nil && len(env.Result) > 0:
		ack := &SubscribeAck{RequestID: *env.ID}
		// Unsubscribe acks carry a bool; only subscription ids are kept.
		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err == nil {
			ack.SubscriptionID = subID
		}
		return Frame{Kind: FrameAck, Ack: ack}, nil
	}

	return Frame{Kind: FrameUnknown}, nil
}

// wsEnvelope holds the union of all top-level fields a frame may carry.
type wsEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Params  json.RawMessage `json:"params"`
	Error   *RPCError       `json:"error"`
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

func (p *wsNotificationParams) toNotification() *LogNotification {
	n := &LogNotification{
		SubscriptionID: p.Subscription,
		Signature:      p.Result.Value.Signature,
		Logs:           p.Result.Value.Logs,
		Err:            p.Result.Value.Err,
	}
	if p.Result.Context != nil {
		n.Slot = p.Result.Context.Slot
	}
	return n
}
