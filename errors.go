package dbpool

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrClosedPool occurs on an attempt to acquire a connection from a
	// closed pool.
	ErrClosedPool = errors.New("closed pool")

	// ErrAcquireTimeout occurs when an Acquire gives up waiting for a
	// connection from an exhausted pool. The caller may retry.
	ErrAcquireTimeout = errors.New("acquire timeout: pool exhausted")

	// ErrInvalidRelease occurs when a connection is released twice or was not
	// acquired from the releasing pool.
	ErrInvalidRelease = errors.New("connection not currently acquired from this pool")
)

// ConnectError is the error returned when the factory fails to open a backing
// connection. The failed attempt is not counted against the pool's capacity.
type ConnectError struct {
	Config *Config
	err    error
}

func (e *ConnectError) Error() string {
	var sb strings.Builder
	sb.WriteString("failed to open connection")
	if e.Config != nil {
		fmt.Fprintf(&sb, " to `host=%s user=%s database=%s`", e.Config.Host, e.Config.User, e.Config.Database)
	}
	if e.err != nil {
		fmt.Fprintf(&sb, ": %s", e.err.Error())
	}
	return sb.String()
}

func (e *ConnectError) Unwrap() error {
	return e.err
}

// ParseConfigError is the error returned when a connection string cannot be
// parsed or describes an invalid pool configuration.
type ParseConfigError struct {
	ConnString string // The connection string with the password obscured.
	msg        string
	err        error
}

// NewParseConfigError constructs a ParseConfigError with the password in
// connString replaced before it can end up in logs.
func NewParseConfigError(conn, msg string, err error) error {
	return &ParseConfigError{
		ConnString: redactPW(conn),
		msg:        msg,
		err:        err,
	}
}

func (e *ParseConfigError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("cannot parse `%s`: %s", e.ConnString, e.msg)
	}
	return fmt.Sprintf("cannot parse `%s`: %s (%s)", e.ConnString, e.msg, e.err.Error())
}

func (e *ParseConfigError) Unwrap() error {
	return e.err
}

func redactPW(connString string) string {
	if strings.Contains(connString, "://") {
		if u, err := url.Parse(connString); err == nil {
			return redactURL(u)
		}
	}
	quotedKV := regexp.MustCompile(`password='[^']*'`)
	connString = quotedKV.ReplaceAllLiteralString(connString, "password=xxxxx")
	plainKV := regexp.MustCompile(`password=[^ ]*`)
	connString = plainKV.ReplaceAllLiteralString(connString, "password=xxxxx")
	brokenURL := regexp.MustCompile(`:[^:@]+?@`)
	connString = brokenURL.ReplaceAllLiteralString(connString, ":xxxxx@")
	return connString
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if _, pwSet := u.User.Password(); pwSet {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
