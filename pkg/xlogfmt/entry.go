package xlogfmt

// Recognized xlog event names (the "event" key of a "meta" record).
const (
	EventStart                = "start"
	EventServiceAttach        = "service attach"
	EventServiceDetach        = "service detach"
	EventServiceConnectFailed = "service connect failure"
	EventSync                 = "sync"
	EventXLogFailure          = "xlog failure"
)

// Rotation flags carried by a "sync" event's "flags" field.
const (
	FlagPreLogrotate  = "pre-logrotate"
	FlagPostLogrotate = "post-logrotate"
)

// SyncState is the "state" field of a sync event: whether the collector
// is currently attached to the base station or has detached after a
// failure.
type SyncState string

const (
	StateAttached SyncState = "attached"
	StateDetached SyncState = "detached"
)

// MetaEvent is the decoded body of a `{"meta": {...}}` xlog line: every
// xlog-internal event (start/attach/detach/sync/failure) is wrapped this
// way so it can never be confused with a raw base-station reply (which
// never carries a top-level "meta" key).
type MetaEvent struct {
	Event string  `json:"event"`
	Time  float64 `json:"time"`

	// sync-specific fields; zero-valued/absent on other events.
	State     SyncState `json:"state,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Flags     string    `json:"flags,omitempty"`
	Generator string    `json:"generator,omitempty"`
	SrvTime   float64   `json:"srv_time,omitempty"`
	SrvUTC    float64   `json:"srv_utc,omitempty"`

	// service attach/detach/connect-failure fields.
	SrvName    string `json:"srv_name,omitempty"`
	SrvType    string `json:"srv_type,omitempty"`
	SrvVersion string `json:"srv_version,omitempty"`

	// xlog-failure fields.
	Traceback string `json:"traceback,omitempty"`
}
