package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (*timeoutErr) Error() string { return "timeout" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("x"), want: "errors_errorstring"},
		{name: "wrapped pointer type", err: fmt.Errorf("outer: %w", &timeoutErr{}), want: "errors_timeouterr"},
		{name: "context deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: "context_deadlineexceedederror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyJoined(t *testing.T) {
	err := errors.Join(fmt.Errorf("a: %w", &timeoutErr{}), errors.New("b"))
	assert.Equal(t, "errors_timeouterr", Classify(err))
}
