package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// Operators quote the code when reporting a failed reload or lookup.
//
// Error codes are grouped by category:
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Not found: No version or snapshot exists for the key
//	           Action: Check the key fields and the applied date
//	           Matches: versionstore.ErrNotFound, snapshot.ErrNotFound
//
//	STORE002 - Version store unavailable: The history database could not be reached
//	           Action: Check DATABASE_URL or the SQLite path and try again
//	           Matches: *versionstore.UnavailableError
//
//	STORE003 - Snapshot cache unavailable: Redis could not be reached
//	           Action: Check REDIS_ADDR and try again
//	           Matches: *snapshot.UnavailableError
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - No input files: The input directory holds no .csv files
//	          Action: Point the reload at a directory of vendor files
//	          Matches: ErrNoInputFiles
//
//	FILE002 - Missing columns: A key or applied-date column is absent
//	          Action: Add the listed columns to the file header
//	          Matches: *feed.HeaderError, pattern "missing required columns"
//
//	FILE003 - Unreadable file: The file is empty or not valid CSV
//	          Action: Check that the file has a header row and consistent columns
//	          Matches: feed.ErrEmptyFile, patterns "parse error", "wrong number of fields"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid identifier character: A check digit was requested for a
//	         body containing a character outside the identifier alphabet
//	         Action: Remove the offending character
//	         Matches: *identifier.AlphabetError
//
//	VAL002 - Invalid identifier request: Unknown identifier kind or wrong body length
//	         Action: Use figi, cusip, sedol or isin with a body of the right length
//	         Matches: identifier.ErrUnknownKind, identifier.ErrBodyLength
//
//	VAL003 - Invalid date: An as-of date is not in YYYY-MM-DD form
//	         Action: Use YYYY-MM-DD
//	         Matches: ErrInvalidDate
//
//	VAL004 - Unindexed field: Search was asked for a column without an index
//	         Action: Search by one of the eight key columns
//	         Matches: ErrUnindexedField
//
//	VAL005 - Empty key: Every key field of a lookup is blank
//	         Action: Pass at least one of the eight key fields
//	         Matches: ErrEmptyKey
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Reload busy: Another reload holds the reload slot
//	         Action: Wait for the running reload to finish
//	         Matches: ErrReloadBusy
//
//	RUN002 - Cancelled: The request was cancelled or timed out
//	         Action: Please try again
//	         Matches: context.Canceled, context.DeadlineExceeded
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the logs for the run id or request id
//
// Typed errors are matched first with errors.Is/As, then the text patterns,
// case-insensitively. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/identifier"
	"github.com/JonMunkholm/secmaster/internal/snapshot"
	"github.com/JonMunkholm/secmaster/internal/versionstore"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgNotFound = UserMessage{
		Message: "No security version found for the requested key",
		Action:  "Check the key fields and the applied date",
		Code:    "STORE001",
	}
	msgVersionStoreDown = UserMessage{
		Message: "The version store is unavailable",
		Action:  "Check DATABASE_URL or the SQLite path and try again",
		Code:    "STORE002",
	}
	msgCacheDown = UserMessage{
		Message: "The snapshot cache is unavailable",
		Action:  "Check REDIS_ADDR and try again",
		Code:    "STORE003",
	}
	msgNoInputFiles = UserMessage{
		Message: "No vendor files found in the input directory",
		Action:  "Point the reload at a directory of .csv files",
		Code:    "FILE001",
	}
	msgMissingColumns = UserMessage{
		Message: "A required key or applied-date column is missing",
		Action:  "Add the listed columns to the file header",
		Code:    "FILE002",
	}
	msgUnreadableFile = UserMessage{
		Message: "The file is empty or not valid CSV",
		Action:  "Check that the file has a header row and consistent columns",
		Code:    "FILE003",
	}
	msgBadAlphabet = UserMessage{
		Message: "Identifier contains a character outside its alphabet",
		Action:  "Remove the offending character",
		Code:    "VAL001",
	}
	msgBadIdentifierRequest = UserMessage{
		Message: "Unknown identifier kind or wrong body length",
		Action:  "Use figi, cusip, sedol or isin with a body of the right length",
		Code:    "VAL002",
	}
	msgInvalidDate = UserMessage{
		Message: "The applied date is not valid",
		Action:  "Use YYYY-MM-DD",
		Code:    "VAL003",
	}
	msgUnindexedField = UserMessage{
		Message: "Search is only available on key columns",
		Action:  "Search by figi, cusip, sedol, isin, company_name, currency, asset_class or asset_group",
		Code:    "VAL004",
	}
	msgEmptyKey = UserMessage{
		Message: "No key fields were given",
		Action:  "Pass at least one of the eight key fields",
		Code:    "VAL005",
	}
	msgReloadBusy = UserMessage{
		Message: "A reload is already running",
		Action:  "Wait for the running reload to finish",
		Code:    "RUN001",
	}
	msgCancelled = UserMessage{
		Message: "The request was cancelled or timed out",
		Action:  "Please try again",
		Code:    "RUN002",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps error text (case-insensitive) to user messages for
// errors that reach us without their type, e.g. after crossing a process
// boundary. Order matters: specific before general.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{pattern: "missing required columns", msg: msgMissingColumns},
	{pattern: "empty file", msg: msgUnreadableFile},
	{pattern: "parse error", msg: msgUnreadableFile},
	{pattern: "wrong number of fields", msg: msgUnreadableFile},
	{pattern: "no input files", msg: msgNoInputFiles},

	// =========================================================================
	// Store Errors
	// =========================================================================
	{pattern: "version store unavailable", msg: msgVersionStoreDown},
	{pattern: "snapshot cache unavailable", msg: msgCacheDown},
	{pattern: "not found", msg: msgNotFound},

	// =========================================================================
	// Run Errors
	// =========================================================================
	{pattern: "reload busy", msg: msgReloadBusy},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgCancelled},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the run id or request id",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := svc.Latest(ctx, key)
//	msg := MapError(err)
//	// msg.Code == "STORE001" when the key has no versions
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		vsDown  *versionstore.UnavailableError
		cDown   *snapshot.UnavailableError
		hdrErr  *feed.HeaderError
		alphErr *identifier.AlphabetError
	)
	switch {
	case errors.Is(err, ErrReloadBusy):
		return msgReloadBusy, true
	case errors.Is(err, ErrNoInputFiles):
		return msgNoInputFiles, true
	case errors.Is(err, ErrInvalidDate):
		return msgInvalidDate, true
	case errors.Is(err, ErrUnindexedField):
		return msgUnindexedField, true
	case errors.Is(err, ErrEmptyKey):
		return msgEmptyKey, true
	case errors.As(err, &vsDown):
		return msgVersionStoreDown, true
	case errors.As(err, &cDown):
		return msgCacheDown, true
	case errors.Is(err, versionstore.ErrNotFound), errors.Is(err, snapshot.ErrNotFound):
		return msgNotFound, true
	case errors.As(err, &hdrErr):
		return msgMissingColumns, true
	case errors.Is(err, feed.ErrEmptyFile):
		return msgUnreadableFile, true
	case errors.As(err, &alphErr):
		return msgBadAlphabet, true
	case errors.Is(err, identifier.ErrUnknownKind), errors.Is(err, identifier.ErrBodyLength):
		return msgBadIdentifierRequest, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return msgCancelled, true
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
