// Package verdict holds the data model shared by every stage of the
// recipient-probing pipeline: the address under test, the MX candidates
// resolved for it, the wire transcript recorded during an SMTP session,
// and the final Verdict returned to callers.
package verdict

import "time"

// RecipientStatus is the internal outcome enum produced by the response
// classifier and the session runner. It is deliberately smaller than the
// outward category taxonomy — the orchestrator derives the user-facing
// category from a RecipientStatus plus a diagnostic tag.
type RecipientStatus string

const (
	StatusValid            RecipientStatus = "Valid"
	StatusUserNotFound     RecipientStatus = "UserNotFound"
	StatusTemporaryFailure RecipientStatus = "TemporaryFailure"
	StatusUnknownFailure   RecipientStatus = "UnknownFailure"
	StatusBlacklisted      RecipientStatus = "Blacklisted"
)

// Direction is the wire-transcript line direction: client-to-server or
// server-to-client.
type Direction string

const (
	DirSent     Direction = ">>"
	DirReceived Direction = "<<"
)

// TranscriptLine is one line of the recorded SMTP dialog.
type TranscriptLine struct {
	Direction Direction `json:"direction"`
	Payload   string    `json:"payload"`
	At        time.Time `json:"at"`
}

// Transcript is ordered by wire order (append-only).
type Transcript []TranscriptLine

// SmtpReply is a parsed (possibly multi-line) SMTP reply.
type SmtpReply struct {
	Code     int    // 100-599, or -1 if unparseable / no reply received
	Enhanced string // e.g. "5.1.1", empty if absent
	Text     string // raw multi-line text, newline-joined
}

// MxCandidate is one resolved mail-exchanger host.
type MxCandidate struct {
	Host       string
	Preference int
}

// SessionOutcome is the result of one runSession call against one
// host:port. It never carries a Go error up the stack — failures are
// represented as StatusUnknownFailure or StatusTemporaryFailure plus an
// Err message instead.
type SessionOutcome struct {
	Status       RecipientStatus
	ReplyCode    int
	ReplyText    string
	DiagnosticTag string
	MxHost       string
	Port         int
	TLS          bool
	Transcript   Transcript
	Timestamp    time.Time
	Err          string // empty if no error
	ProbeID      string // correlates concurrent sessions spawned by one race
}

// Verdict is the address-level outcome returned by the orchestrator and,
// optionally, persisted by the result cache.
type Verdict struct {
	Address              string     `json:"address"`
	Category              string     `json:"category"`
	CatchAll              bool       `json:"catchAll"`
	SmtpCode              int        `json:"smtpCode"`
	Status                RecipientStatus `json:"status"`
	DiagnosticTag         string     `json:"diagnosticTag"`
	MailHost              string     `json:"mailHost,omitempty"`
	Transcript            Transcript `json:"transcript,omitempty"`
	PortOpened            bool       `json:"portOpened"`
	ConnectionSuccessful  bool       `json:"connectionSuccessful"`
	Errors                []string   `json:"errors,omitempty"`
	Timestamp             time.Time  `json:"timestamp"`
	ProbeID               string     `json:"probeId,omitempty"`
}

// CacheRow is the on-disk shape of a cached Verdict.
type CacheRow struct {
	Address  string    `json:"address"`
	Verdict  Verdict   `json:"verdict"`
	CachedAt time.Time `json:"cachedAt"`
}

// Outward category taxonomy.
const (
	CategoryValid               = "Valid"
	CategoryInvalid             = "Invalid"
	CategoryCatchAll            = "Catch-All"
	CategoryDisposable          = "Disposable"
	CategoryBlacklisted         = "Blacklisted"
	CategoryWhitelisted         = "Whitelisted"
	CategoryUserNotFound        = "UserNotFound"
	CategoryGreylisted          = "Greylisted"
	CategoryRelayDenied         = "RelayDenied"
	CategoryAccessDenied        = "AccessDenied"
	CategoryUnknown             = "Unknown"
	CategoryForwarded           = "Forwarded"
	CategoryCannotVerify        = "CannotVerify"
	CategoryMailboxBusy         = "MailboxBusy"
	CategoryLocalError          = "LocalError"
	CategoryInsufficientStorage = "InsufficientStorage"
	CategorySyntaxError         = "SyntaxError"
)
