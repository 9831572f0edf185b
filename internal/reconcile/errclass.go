package reconcile

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Class partitions persistence failures into the two responses the webhook
// boundary can give: 5xx (provider redelivers) or accept-and-log.
type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

// Transient marks err as retriable regardless of its shape.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

// Terminal marks err as non-retriable regardless of its shape.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

// transientPQClasses are the postgres SQLSTATE classes worth a redelivery:
// connection exceptions, insufficient resources, operator intervention, and
// the serialization/deadlock failures that a retry resolves.
var transientPQClasses = map[string]bool{
	"08": true, // connection exception
	"53": true, // insufficient resources
	"57": true, // operator intervention (e.g. shutdown)
	"58": true, // system error
}

var transientPQCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

var transientMessageTokens = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"too many connections",
	"temporarily unavailable",
}

// Classify decides whether err deserves a 5xx so the provider's own retry
// redelivers, or is terminal and the event must be acknowledged.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if transientPQCodes[code] {
			return Decision{Class: ClassTransient, Reason: "pq_" + code}
		}
		if len(code) >= 2 && transientPQClasses[code[:2]] {
			return Decision{Class: ClassTransient, Reason: "pq_class_" + code[:2]}
		}
		return Decision{Class: ClassTerminal, Reason: "pq_" + code}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	lower := strings.ToLower(err.Error())
	for _, token := range transientMessageTokens {
		if strings.Contains(lower, token) {
			return Decision{Class: ClassTransient, Reason: "message_transient"}
		}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}
