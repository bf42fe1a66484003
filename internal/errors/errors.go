package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeRepositoryCorrupt      ErrorType = "REPOSITORY_CORRUPT"
	ErrorTypeDetachedHead           ErrorType = "DETACHED_HEAD"
	ErrorTypeEmptyCommit            ErrorType = "EMPTY_COMMIT"
	ErrorTypeUncommittedChanges     ErrorType = "UNCOMMITTED_CHANGES"
	ErrorTypeUncommittedLocalChange ErrorType = "UNCOMMITTED_LOCAL_CHANGE"
	ErrorTypeUntrackedPath          ErrorType = "UNTRACKED_PATH"
	ErrorTypeUnknownCommit          ErrorType = "UNKNOWN_COMMIT"
	ErrorTypeFutureCommit           ErrorType = "FUTURE_COMMIT"
	ErrorTypeCommitNameCollision    ErrorType = "COMMIT_NAME_COLLISION"
	ErrorTypeUsage                  ErrorType = "USAGE"
	ErrorTypeIO                     ErrorType = "IO"
	ErrorTypeInternal               ErrorType = "INTERNAL"
)

// Process exit codes, one per failure class.
const (
	CodeDomain   = 1
	CodeUsage    = 2
	CodeIO       = 3
	CodeInternal = 70
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same type, so the sentinels below work with
// errors.Is regardless of message or details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

var (
	ErrRepositoryCorrupt      = &Error{Type: ErrorTypeRepositoryCorrupt}
	ErrDetachedHead           = &Error{Type: ErrorTypeDetachedHead}
	ErrEmptyCommit            = &Error{Type: ErrorTypeEmptyCommit}
	ErrUncommittedChanges     = &Error{Type: ErrorTypeUncommittedChanges}
	ErrUncommittedLocalChange = &Error{Type: ErrorTypeUncommittedLocalChange}
	ErrUntrackedPath          = &Error{Type: ErrorTypeUntrackedPath}
	ErrUnknownCommit          = &Error{Type: ErrorTypeUnknownCommit}
	ErrFutureCommit           = &Error{Type: ErrorTypeFutureCommit}
	ErrCommitNameCollision    = &Error{Type: ErrorTypeCommitNameCollision}
	ErrUsage                  = &Error{Type: ErrorTypeUsage}
	ErrIO                     = &Error{Type: ErrorTypeIO}
	ErrInternal               = &Error{Type: ErrorTypeInternal}
)

func RepositoryCorrupt(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeRepositoryCorrupt,
		Message: message,
		Code:    CodeIO,
		Err:     err,
	}
}

func DetachedHead(head string) *Error {
	return &Error{
		Type:    ErrorTypeDetachedHead,
		Message: fmt.Sprintf("HEAD is detached at %s; reset or check out the last commit first", head),
		Code:    CodeDomain,
		Details: head,
	}
}

func EmptyCommit() *Error {
	return &Error{
		Type:    ErrorTypeEmptyCommit,
		Message: "nothing staged to commit",
		Code:    CodeDomain,
	}
}

func UncommittedChanges() *Error {
	return &Error{
		Type:    ErrorTypeUncommittedChanges,
		Message: "there are uncommitted changes",
		Code:    CodeDomain,
	}
}

func UncommittedLocalChange(path string) *Error {
	return &Error{
		Type:    ErrorTypeUncommittedLocalChange,
		Message: fmt.Sprintf("file %s has an uncommitted version", path),
		Code:    CodeDomain,
		Details: path,
	}
}

func UntrackedPath(path string) *Error {
	return &Error{
		Type:    ErrorTypeUntrackedPath,
		Message: fmt.Sprintf("file %s is not tracked", path),
		Code:    CodeDomain,
		Details: path,
	}
}

func UnknownCommit(name string) *Error {
	return &Error{
		Type:    ErrorTypeUnknownCommit,
		Message: fmt.Sprintf("no such commit: %s", name),
		Code:    CodeDomain,
		Details: name,
	}
}

func FutureCommit(name, head string) *Error {
	return &Error{
		Type:    ErrorTypeFutureCommit,
		Message: fmt.Sprintf("commit %s is newer than HEAD %s", name, head),
		Code:    CodeDomain,
		Details: name,
	}
}

func CommitNameCollision(name string) *Error {
	return &Error{
		Type:    ErrorTypeCommitNameCollision,
		Message: fmt.Sprintf("commit %s already exists, retry", name),
		Code:    CodeDomain,
		Details: name,
	}
}

func Usage(message string) *Error {
	return &Error{
		Type:    ErrorTypeUsage,
		Message: message,
		Code:    CodeUsage,
	}
}

func IO(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Message: message,
		Code:    CodeIO,
		Err:     err,
	}
}

func Internal(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    CodeInternal,
		Details: details,
	}
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// ExitCode maps err to a process exit code. Untyped errors count as I/O
// failures since everything typed is raised by this module.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return CodeIO
}
