package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: operation timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"explicit transient", Transient(errors.New("flaky")), true},
		{"explicit terminal", Terminal(errors.New("bad input")), false},
		{"wrapped explicit transient", fmt.Errorf("apply: %w", Transient(errors.New("flaky"))), true},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"pq serialization failure", &pq.Error{Code: "40001"}, true},
		{"pq deadlock", &pq.Error{Code: "40P01"}, true},
		{"pq lock not available", &pq.Error{Code: "55P03"}, true},
		{"pq connection exception class", &pq.Error{Code: "08006"}, true},
		{"pq too many connections", &pq.Error{Code: "53300"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"pq undefined table", &pq.Error{Code: "42P01"}, false},
		{"net timeout", timeoutErr{}, true},
		{"wrapped net timeout", fmt.Errorf("exec: %w", timeoutErr{}), true},
		{"connection refused message", errors.New("dial tcp 10.0.0.1:5432: connection refused"), true},
		{"broken pipe message", errors.New("write: broken pipe"), true},
		{"plain error", errors.New("something else entirely"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.err)
			assert.Equal(t, tt.transient, d.IsTransient(), "reason=%s", d.Reason)
		})
	}
}

func TestMarkersPreserveErrorChain(t *testing.T) {
	base := errors.New("root cause")
	marked := Transient(fmt.Errorf("outer: %w", base))

	assert.True(t, errors.Is(marked, base))
	assert.EqualError(t, marked, "outer: root cause")

	assert.Nil(t, Transient(nil))
	assert.Nil(t, Terminal(nil))
}
