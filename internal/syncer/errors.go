package syncer

import "fmt"

// ErrorCode classifies the failures surfaced in SyncProgress.Error.
type ErrorCode string

const (
	CodeCampaignNotFound    ErrorCode = "campaign-not-found"
	CodeNoKeywords          ErrorCode = "no-keywords"
	CodeNoPlatforms         ErrorCode = "no-platforms"
	CodePlatformUnreachable ErrorCode = "platform-unreachable"
	CodeSubmissionRejected  ErrorCode = "submission-rejected"
	CodeAllStepsFailed      ErrorCode = "all-steps-failed"
	CodeAlreadyRunning      ErrorCode = "sync-already-running"
	CodeSyncStartRejected   ErrorCode = "sync-start-rejected"
)

// Error is returned by Start for requests that are rejected or that fail
// before any page is fetched.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors by code, so errors.Is(err, ErrAlreadyRunning) works for
// any *Error with that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var ErrAlreadyRunning = &Error{Code: CodeAlreadyRunning, Message: "a sync is already running"}
