// Package record defines the normalized access-log entry stored by accesslog.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Placeholder is the value used for any string field missing from the source line.
const Placeholder = "-"

// MaxAddrLen is the widest remote_ip or remote_user the logs table accepts.
const MaxAddrLen = 50

// ErrInvalid is returned by Validate for records the store cannot hold.
var ErrInvalid = errors.New("invalid record")

// Record is one normalized access-log entry.
type Record struct {
	// ID is assigned by the store on insert. Zero until then, display only.
	ID int64 `json:"id"`

	Timestamp      time.Time `json:"timestamp"`
	RemoteIP       string    `json:"remote_ip"`
	RemoteUser     string    `json:"remote_user"`
	Request        string    `json:"request"`
	ResponseStatus int       `json:"response"`
	BytesSent      int64     `json:"bytes"`
	Referrer       string    `json:"referrer"`
	Agent          string    `json:"agent"`
}

// New returns a record with every field at its default, stamped with now.
func New(now time.Time) Record {
	return Record{
		Timestamp:  now,
		RemoteIP:   Placeholder,
		RemoteUser: Placeholder,
		Request:    Placeholder,
		Referrer:   Placeholder,
		Agent:      Placeholder,
	}
}

// Validate checks the record fits the logs table.
func (r Record) Validate() error {
	if r.ResponseStatus < 0 {
		return fmt.Errorf("%w: negative response %d", ErrInvalid, r.ResponseStatus)
	}
	if r.BytesSent < 0 {
		return fmt.Errorf("%w: negative bytes %d", ErrInvalid, r.BytesSent)
	}
	if len(r.RemoteIP) > MaxAddrLen {
		return fmt.Errorf("%w: remote_ip longer than %d bytes", ErrInvalid, MaxAddrLen)
	}
	if len(r.RemoteUser) > MaxAddrLen {
		return fmt.Errorf("%w: remote_user longer than %d bytes", ErrInvalid, MaxAddrLen)
	}
	for _, s := range []string{r.RemoteIP, r.RemoteUser, r.Request, r.Referrer, r.Agent} {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("%w: NUL byte in text field", ErrInvalid)
		}
		if !utf8.ValidString(s) {
			return fmt.Errorf("%w: text field is not valid UTF-8", ErrInvalid)
		}
	}
	return nil
}
