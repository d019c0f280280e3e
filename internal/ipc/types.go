package ipc

import (
	"encoding/json"
	"time"
)

// StatusRequest fetches engine status.
type StatusRequest struct{}

// StatusResponse summarizes engine and scheduler state.
type StatusResponse struct {
	Running          bool      `json:"running"`
	PID              int       `json:"pid"`
	State            string    `json:"state"`
	ProviderKind     string    `json:"provider_kind"`
	Location         string    `json:"location"`
	SupportsRestore  bool      `json:"supports_restore"`
	LastBackupAt     time.Time `json:"last_backup_at"`
	LastBackupStatus string    `json:"last_backup_status"`
	NextDue          time.Time `json:"next_due"`
	LastError        string    `json:"last_error"`
	DirtySessions    int       `json:"dirty_sessions"`
	StateDBPath      string    `json:"state_db_path"`
	LockPath         string    `json:"lock_path"`
}

// EnableRequest turns backups on.
type EnableRequest struct{}

// EnableResponse reports enablement outcome. Cancelled means no storage
// location has been chosen; the engine state is unchanged.
type EnableResponse struct {
	Enabled   bool   `json:"enabled"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// DisableRequest turns periodic backups off.
type DisableRequest struct{}

// DisableResponse confirms the disable.
type DisableResponse struct {
	Disabled bool `json:"disabled"`
}

// BackupNowRequest triggers a synchronous backup run.
type BackupNowRequest struct {
	Reason string `json:"reason"`
}

// BackupNowResponse summarizes the completed run.
type BackupNowResponse struct {
	Reason         string    `json:"reason"`
	Sessions       int       `json:"sessions"`
	GlobalIncluded bool      `json:"global_included"`
	Evicted        int       `json:"evicted"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// ReauthorizeRequest restores access to the backup root after a pause.
type ReauthorizeRequest struct{}

// ReauthorizeResponse reports whether backups resumed.
type ReauthorizeResponse struct {
	Resumed bool   `json:"resumed"`
	Message string `json:"message"`
}

// MarkDirtyRequest records unsaved changes for a session.
type MarkDirtyRequest struct {
	SessionKey   string `json:"session_key"`
	SessionLabel string `json:"session_label"`
}

// MarkDirtyResponse confirms the marker.
type MarkDirtyResponse struct {
	Marked bool `json:"marked"`
}

// ClearDirtyRequest removes a session's dirty marker by its raw key.
type ClearDirtyRequest struct {
	SessionKey string `json:"session_key"`
}

// ClearDirtyResponse confirms the clear.
type ClearDirtyResponse struct {
	Cleared bool `json:"cleared"`
}

// DismissDirtyRequest discards a recovery offer by hashed session key.
type DismissDirtyRequest struct {
	SessionKeyHash string `json:"session_key_hash"`
}

// DismissDirtyResponse confirms the dismissal.
type DismissDirtyResponse struct {
	Dismissed bool `json:"dismissed"`
}

// Recovery describes one session that closed with unsaved changes.
type Recovery struct {
	SessionKeyHash string    `json:"session_key_hash"`
	SessionLabel   string    `json:"session_label"`
	MarkedAt       time.Time `json:"marked_at"`
	Hint           string    `json:"hint"`
}

// RecoveryStatusRequest lists pending recovery offers.
type RecoveryStatusRequest struct{}

// RecoveryStatusResponse carries the pending recoveries.
type RecoveryStatusResponse struct {
	Recoveries []Recovery `json:"recoveries"`
}

// SnapshotEntry mirrors one manifest entry for IPC callers.
type SnapshotEntry struct {
	Filename       string    `json:"filename"`
	SessionKeyHash string    `json:"session_key_hash"`
	SessionLabel   string    `json:"session_label"`
	CreatedAt      time.Time `json:"created_at"`
	Reason         string    `json:"reason"`
	AppVersion     string    `json:"app_version"`
	SchemaVersion  int       `json:"schema_version"`
	CompressedSize int64     `json:"compressed_size"`
	Checksum       string    `json:"checksum"`
}

// SessionGroup is all snapshots of one session, newest first.
type SessionGroup struct {
	SessionKeyHash string          `json:"session_key_hash"`
	SessionLabel   string          `json:"session_label"`
	Snapshots      []SnapshotEntry `json:"snapshots"`
}

// SnapshotListRequest fetches the grouped backup root contents.
type SnapshotListRequest struct{}

// SnapshotListResponse carries the grouped listing.
type SnapshotListResponse struct {
	Sessions []SessionGroup  `json:"sessions"`
	Global   []SnapshotEntry `json:"global"`
}

// RestoreRequest reads one snapshot back by manifest filename.
type RestoreRequest struct {
	Filename string `json:"filename"`
}

// RestoreResponse carries the verified, decoded payload.
type RestoreResponse struct {
	SessionKeyHash string          `json:"session_key_hash"`
	SessionLabel   string          `json:"session_label"`
	CreatedAt      time.Time       `json:"created_at"`
	Reason         string          `json:"reason"`
	SchemaVersion  int             `json:"schema_version"`
	AppVersion     string          `json:"app_version"`
	Data           json.RawMessage `json:"data"`
}

// AdoptRequest adopts an existing backup root.
type AdoptRequest struct {
	Root string `json:"root"`
}

// AdoptResponse summarizes the adopted manifest.
type AdoptResponse struct {
	Snapshots       int `json:"snapshots"`
	GlobalSnapshots int `json:"global_snapshots"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
