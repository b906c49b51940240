package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies why an item (or a flush) failed.
type ErrorKind string

const (
	KindRateLimit          ErrorKind = "rate_limit_exceeded"
	KindHTTP               ErrorKind = "http_error"
	KindAgeVerification    ErrorKind = "age_verification_failed"
	KindInvalidPage        ErrorKind = "invalid_page"
	KindTransient          ErrorKind = "transient_exception"
	KindUnknown            ErrorKind = "unknown"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
)

// Filter reasons.
const (
	ReasonLowReviewCount = "low_review_count"
	ReasonWrongItemType  = "wrong_item_type"
)

// Stage names the pipeline step an item failed in.
type Stage string

const (
	StageEnrichment Stage = "enrichment"
	StageStructured Stage = "structured"
	StageStorage    Stage = "storage"
)

var (
	// ErrSourceUnavailable means the id listing could not be retrieved at all.
	ErrSourceUnavailable = errors.New("id source unavailable")
	// ErrStorageUnavailable means a batch flush exhausted its retries.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FetchError is returned by remote adapters so the retry layer can classify
// failures without inspecting transport details.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// StatusError maps a non-2xx response to a FetchError.
func StatusError(status int, retryAfter time.Duration, msg string) *FetchError {
	kind := KindHTTP
	if status == http.StatusTooManyRequests {
		kind = KindRateLimit
	}
	return &FetchError{Kind: kind, StatusCode: status, RetryAfter: retryAfter, Message: msg}
}

// Failure describes a terminal per-item failure.
type Failure struct {
	ItemID     ItemID
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Attempts   int
	Stage      Stage
}

// Outcome is the terminal result of processing one item.
// Implemented only by Persisted, Filtered and Failed.
type Outcome interface {
	ID() ItemID
	outcome()
}

// Persisted carries a record that passed every gate.
type Persisted struct {
	Record MergedGameRecord
}

// Filtered marks an item dropped by a policy gate.
type Filtered struct {
	ItemID ItemID
	Reason string
}

// Failed marks an item that could not be acquired or written.
type Failed struct {
	Failure Failure
}

func (o Persisted) ID() ItemID { return o.Record.ItemID }
func (o Filtered) ID() ItemID { return o.ItemID }
func (o Failed) ID() ItemID { return o.Failure.ItemID }

func (Persisted) outcome() {}
func (Filtered) outcome() {}
func (Failed) outcome() {}
