package core

// LogEntry is a single structured log record from any session.
type LogEntry struct {
	TsUnixMs int64  `json:"ts_unix_ms"`
	Type     string `json:"type"` // "stdout", "stderr", "system", etc.
	Data     string `json:"data"`
}
