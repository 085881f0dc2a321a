package cerr

// Code classifies coordination errors. The taxonomy is deliberately small:
// every failure the core can hit maps onto one of these, and callers branch
// on the code rather than on error strings.
type Code int

const (
	OK Code = iota
	// ParseFailure means a canonical or local document is malformed.
	// Non-fatal: callers keep operating on the last good snapshot.
	ParseFailure
	// WorkspaceMissing means a referenced agent workspace does not exist.
	WorkspaceMissing
	// SyncConflict means an agent's local copy of a coordination document
	// diverged from the last value this system wrote. Human-resolvable,
	// never auto-overwritten.
	SyncConflict
	// VersionControl means a git stage/commit/query operation failed.
	VersionControl
	// NotificationDelivery means a notification sink failed to deliver.
	NotificationDelivery
	NotFound
	Timeout
	Internal
)

var codeNames = map[Code]string{
	OK:                   "ok",
	ParseFailure:         "parse_failure",
	WorkspaceMissing:     "workspace_missing",
	SyncConflict:         "sync_conflict",
	VersionControl:       "version_control",
	NotificationDelivery: "notification_delivery",
	NotFound:             "not_found",
	Timeout:              "timeout",
	Internal:             "internal",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}
