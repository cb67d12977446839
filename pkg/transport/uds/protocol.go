package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/downsample"
	"github.com/lodestar-sh/lodestar/pkg/stream"
)

var msgCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Method, err)
	}
	return nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     fmt.Sprintf("req-%d", msgCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Data:   raw,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     fmt.Sprintf("evt-%d", msgCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// Methods
const (
	MethodPing         = "Ping"
	MethodStatus       = "Status"
	MethodSources      = "Sources"
	MethodSeriesQuery  = "SeriesQuery"
	MethodMetricsQuery = "MetricsQuery"
	MethodLogsStore    = "LogsStore"
	MethodLogsQuery    = "LogsQuery"
	MethodLogsExport   = "LogsExport"
	MethodLogsDelete   = "LogsDelete"

	EventMetricsSample = "metrics.sample"
	EventSourceState   = "source.state"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong bool `json:"pong"`
}

// StatusResponse summarizes the daemon.
type StatusResponse struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sources       int    `json:"sources"`
	Points        int    `json:"points"`
	LogSessions   int    `json:"log_sessions"`
}

// SourcesResponse lists the connection state of every tracked source.
type SourcesResponse struct {
	Sources []stream.ConnState `json:"sources"`
}

// SeriesQueryRequest asks for a downsampled series of one metric kind.
type SeriesQueryRequest struct {
	SourceID  string `json:"source_id"`
	Kind      string `json:"kind"`
	FromMs    int64  `json:"from_ms,omitempty"`
	ToMs      int64  `json:"to_ms,omitempty"`
	MaxPoints int    `json:"max_points,omitempty"`
}

// SeriesQueryResponse carries the downsampled points.
type SeriesQueryResponse struct {
	SourceID string             `json:"source_id"`
	Kind     string             `json:"kind"`
	Total    int                `json:"total"`
	Points   []downsample.Point `json:"points"`
}

// MetricsQueryRequest asks for raw points or aggregates over a range.
type MetricsQueryRequest struct {
	SourceID  string `json:"source_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	FromMs    int64  `json:"from_ms,omitempty"`
	ToMs      int64  `json:"to_ms,omitempty"`
	Aggregate bool   `json:"aggregate,omitempty"`
}

// MetricsQueryResponse carries matching points, or just the aggregate
// when the request asked for one.
type MetricsQueryResponse struct {
	Points  []core.MetricPoint `json:"points,omitempty"`
	Average float64            `json:"average"`
	Min     float64            `json:"min"`
	Max     float64            `json:"max"`
	Count   int                `json:"count"`
}

// LogsStoreRequest appends entries to a session's log.
type LogsStoreRequest struct {
	SessionID string          `json:"session_id"`
	Entries   []core.LogEntry `json:"entries"`
}

// LogsQueryRequest retrieves entries from a session's log.
type LogsQueryRequest struct {
	SessionID string `json:"session_id"`
	Tail      int    `json:"tail,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

// LogsQueryResponse carries the matching entries.
type LogsQueryResponse struct {
	SessionID string          `json:"session_id"`
	Entries   []core.LogEntry `json:"entries"`
}

// LogsExportRequest renders a session's log as json or text.
type LogsExportRequest struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"` // json or text
}

// LogsExportResponse carries the rendered document.
type LogsExportResponse struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
	Content   string `json:"content"`
}

// LogsDeleteRequest removes a session's log files.
type LogsDeleteRequest struct {
	SessionID string `json:"session_id"`
}

// SampleEvent is broadcast for every ingested metric point.
type SampleEvent struct {
	Point core.MetricPoint `json:"point"`
}

// SourceStateEvent is broadcast when a source's connection changes.
type SourceStateEvent struct {
	State stream.ConnState `json:"state"`
}
