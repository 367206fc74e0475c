// services/streamer/internal/service/protocol.go
package service

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	subscribeRequestID = "2"
	commandSubscribe   = "SUBS"

	fieldTimestamp          = "timestamp"
	fieldFormattedTimestamp = "formatted_timestamp"
)

type subscribeEnvelope struct {
	Requests []subscribeRequest `json:"requests"`
}

type subscribeRequest struct {
	Service    string          `json:"service"`
	RequestID  string          `json:"requestid"`
	Command    string          `json:"command"`
	Account    string          `json:"account"`
	Source     string          `json:"source"`
	Parameters subscribeParams `json:"parameters"`
}

type subscribeParams struct {
	Keys   string `json:"keys"`
	Fields string `json:"fields"`
}

type pushFrame struct {
	Data json.RawMessage `json:"data"`
}

type pushBlock struct {
	Timestamp json.RawMessage   `json:"timestamp"`
	Content   []json.RawMessage `json:"content"`
}

// decodePush returns the first data block. Valid JSON of any other shape
// (heartbeats, responses, a non-array data) gives nil without error;
// only input that is not JSON at all is reported.
func decodePush(raw []byte) (*pushBlock, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrDecode)
	}
	var frame pushFrame
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame.Data) == 0 {
		return nil, nil
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal(frame.Data, &blocks); err != nil || len(blocks) == 0 {
		return nil, nil
	}
	var block pushBlock
	if err := json.Unmarshal(blocks[0], &block); err != nil {
		return nil, nil
	}
	return &block, nil
}

// timestampMillis accepts a JSON number or a numeric string.
func timestampMillis(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return 0, false
	}
	ms, err := n.Int64()
	return ms, err == nil
}

// formatTimestamp renders epoch ms in the local zone, with microseconds
// only when the instant has a fractional second.
func formatTimestamp(ms int64, loc *time.Location) string {
	t := time.UnixMilli(ms).In(loc)
	if ms%1000 == 0 {
		return t.Format("2006-01-02 15:04:05")
	}
	return t.Format("2006-01-02 15:04:05.000000")
}
