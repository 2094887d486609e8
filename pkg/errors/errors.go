package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents transport failures from the HTTP client or browser
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeMalformedNumeric represents a price or count that exists but does not parse
	ErrorTypeMalformedNumeric ErrorType = "malformed_numeric"
	// ErrorTypeUnparseableDate represents a date phrase in no known format
	ErrorTypeUnparseableDate ErrorType = "unparseable_date"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStorage represents sink write errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a crawler-specific error
type CrawlerError struct {
	Type     ErrorType
	Provider string
	Field    string
	Message  string
	Err      error
	Time     time.Time

	// RetryAfter is how long the provider asked us to wait, rate limits only
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	subject := e.Provider
	if e.Field != "" {
		subject = fmt.Sprintf("%s.%s", e.Provider, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, subject, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, subject, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *CrawlerError) IsRetryable() bool {
	return e.Type == ErrorTypeNetwork
}

// New creates a new CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, provider, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(provider string, duration time.Duration) *CrawlerError {
	message := fmt.Sprintf("rate limited for %v", duration)
	e := New(ErrorTypeRateLimit, provider, message, nil)
	e.RetryAfter = duration
	return e
}

// NewMalformedNumeric creates an error for a numeric field whose text survived
// cleanup but still does not parse.
func NewMalformedNumeric(provider, field, raw string, err error) *CrawlerError {
	e := New(ErrorTypeMalformedNumeric, provider, fmt.Sprintf("malformed numeric %q", raw), err)
	e.Field = field
	return e
}

// NewUnparseableDate creates an error for a date phrase in no known format.
func NewUnparseableDate(provider, field, raw string) *CrawlerError {
	e := New(ErrorTypeUnparseableDate, provider, fmt.Sprintf("unparseable date %q", raw), nil)
	e.Field = field
	return e
}

// NewCache creates a new cache error
func NewCache(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, provider, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, provider, message, err)
}

// NewStorage creates a new sink error
func NewStorage(sink, message string, err error) *CrawlerError {
	return New(ErrorTypeStorage, sink, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// RetryAfter returns the wait requested by a rate-limit error in err's chain,
// or 0 when there is none.
func RetryAfter(err error) time.Duration {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// TypeOf returns the ErrorType of the first CrawlerError in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// Is reports whether err carries a CrawlerError of the given type.
func Is(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// IsRetryable reports whether err carries a retryable CrawlerError.
func IsRetryable(err error) bool {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}
