// Package protocol implements the shim-governor wire protocol: newline
// delimited JSON envelopes over a local bidirectional byte stream (a Unix
// domain socket on POSIX, a Windows named pipe on Windows), plus the
// fail-open auto-start sequence shims use to find or launch a governor.
package protocol

import "encoding/json"

// Envelope is the outer shape of every wire message: {"type": ..., "data": ...}.
// A one-shot error reply omits type/data and carries only Error, matching
// the wire protocol's literal {"error": "..."} shape for unrecognized
// message types.
type Envelope struct {
	Type  string          `json:"type,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Message type literals, per the wire protocol's request/response naming.
const (
	TypeAcquire          = "acquire"
	TypeAcquireResponse  = "acquire_response"
	TypeRelease          = "release"
	TypeReleaseResponse  = "release_response"
	TypeStatus           = "status"
	TypeStatusResponse   = "status_response"
	TypeHeartbeat        = "heartbeat"
	TypeHeartbeatResp    = "heartbeat_response"
)

// AcquireRequest is the acquire request payload.
type AcquireRequest struct {
	Tool             string `json:"tool"`
	ArgsHash         string `json:"argsHash"`
	RequestedTokens  int    `json:"requestedTokens"`
	TimeoutMs        int    `json:"timeoutMs"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`
	SourceFile       string `json:"sourceFile,omitempty"`
	IsLTCG           bool   `json:"isLTCG,omitempty"`
}

// AcquireResponse is the acquire response payload.
type AcquireResponse struct {
	Granted                bool    `json:"granted"`
	LeaseID                string  `json:"leaseId,omitempty"`
	GrantedTokens          int     `json:"grantedTokens"`
	RecommendedParallelism int     `json:"recommendedParallelism"`
	Reason                 string  `json:"reason,omitempty"`
	CommitRatio            float64 `json:"commitRatio"`
}

// ReleaseRequest is the release request payload.
type ReleaseRequest struct {
	LeaseID              string `json:"leaseId"`
	PeakWorkingSetBytes  uint64 `json:"peakWorkingSetBytes"`
	PeakCommitBytes      uint64 `json:"peakCommitBytes"`
	ExitCode             int    `json:"exitCode"`
	DurationMs           int64  `json:"durationMs"`
	StderrHadDiagnostics bool   `json:"stderrHadDiagnostics"`
	StderrDigest         string `json:"stderrDigest,omitempty"`
}

// ReleaseResponse is the release response payload.
type ReleaseResponse struct {
	Acknowledged    bool   `json:"acknowledged"`
	Classification  string `json:"classification,omitempty"`
	Message         string `json:"message,omitempty"`
	ShouldRetry     bool   `json:"shouldRetry"`
	RetryWithTokens int    `json:"retryWithTokens,omitempty"`
}

// StatusLease is a trimmed-down view of one lease in a status response.
type StatusLease struct {
	LeaseID          string  `json:"leaseId"`
	Tool             string  `json:"tool"`
	Tokens           int     `json:"tokens"`
	DurationSeconds  float64 `json:"durationSeconds"`
	ExpiresInSeconds float64 `json:"expiresInSeconds"`
}

// StatusResponse is the status response payload. The status request carries
// no data.
type StatusResponse struct {
	TotalTokens            int           `json:"totalTokens"`
	AvailableTokens        int           `json:"availableTokens"`
	ActiveLeases           int           `json:"activeLeases"`
	ExpiredLeaseCount      int64         `json:"expiredLeaseCount"`
	CommitRatio            float64       `json:"commitRatio"`
	CommitChargeBytes      uint64        `json:"commitChargeBytes"`
	CommitLimitBytes       uint64        `json:"commitLimitBytes"`
	AvailableMemoryBytes   uint64        `json:"availableMemoryBytes"`
	ThrottleLevel          string        `json:"throttleLevel"`
	RecommendedParallelism int           `json:"recommendedParallelism"`
	RecentLeases           []StatusLease `json:"recentLeases,omitempty"`
}

// HeartbeatRequest is the heartbeat request payload.
type HeartbeatRequest struct {
	LeaseID string `json:"leaseId"`
}

// HeartbeatResponse is the heartbeat response payload.
type HeartbeatResponse struct {
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"`
}
