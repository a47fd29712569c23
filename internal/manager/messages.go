package manager

import (
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/google/uuid"
)

// ProgressKind identifies the shape of an unsolicited progress message a
// data server sends while starting.
type ProgressKind string

const (
	ProgressSubstatus     ProgressKind = "substatus"
	ProgressInit          ProgressKind = "init"
	ProgressDelta         ProgressKind = "delta"
	ProgressChild         ProgressKind = "child"
	ProgressPhaseComplete ProgressKind = "phase_complete"
	ProgressRunning       ProgressKind = "running"
)

// Progress is an unsolicited message a data server sends to the manager
// during its startup pipeline. Exactly one of the payload fields is
// meaningful, selected by Kind.
type Progress struct {
	Code        string
	Kind        ProgressKind
	Substatus   string
	Timestamp   time.Time
	Delta       int
	ChildID     uuid.UUID
	CityCount   int
	CompletedAt time.Time
}

// Reason identifies why a data server terminated.
type Reason string

const (
	ReasonStopped             Reason = "stopped"
	ReasonNoCities            Reason = "no_cities"
	ReasonCountryFileError    Reason = "country_file_error"
	ReasonFCPCountryFileError Reason = "fcp_country_file_error"
	ReasonCountryZipFileError Reason = "country_zip_file_error"
	ReasonRetryLimitExceeded  Reason = "retry_limit_exceeded"
	ReasonOther               Reason = "error"
)

// Termination is the last message a data server ever sends. Identity is
// carried by Code when the server already knows its own name (the
// controlled stopped/no_cities reasons); every other reason carries only
// Handle, and the manager must reverse-look-up the owning country code —
// mirroring the source, where these notifications arrive tagged by process
// reference rather than by name.
type Termination struct {
	Reason Reason
	Code   string
	Handle *domain.Handle
	Detail string
}

// ShutdownCmd is sent to a data server's command channel to request orderly
// termination with reason stopped(name).
type ShutdownCmd struct{}

// TraceCmd toggles a data server's verbose logging without interrupting
// its work.
type TraceCmd struct {
	On bool
}
