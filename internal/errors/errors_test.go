package errors

import (
	stderrors "errors"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *PipelineError
		wantCode   ErrorCode
		wantStatus int
	}{
		{"invalid request", NewInvalidRequest("source_url is required"), ErrInvalidRequest, 400},
		{"not found", NewNotFound("post", "01ABC"), ErrNotFound, 404},
		{"reasoning unavailable", NewReasoningUnavailable(stderrors.New("connection refused")), ErrReasoningUnavailable, 502},
		{"internal", NewInternal(stderrors.New("boom")), ErrInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Error() == "" {
				t.Error("Error() should not be empty")
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("post", "x")
	if !Is(err, ErrNotFound) {
		t.Error("Is should match NOT_FOUND")
	}
	if Is(err, ErrInternal) {
		t.Error("Is should not match INTERNAL")
	}
	if Is(stderrors.New("plain"), ErrInternal) {
		t.Error("Is should be false for non-PipelineError")
	}
}

func TestNilWrappedErrors(t *testing.T) {
	if msg := NewInternal(nil).Message; msg != "internal error" {
		t.Errorf("NewInternal(nil).Message = %q", msg)
	}
	if msg := NewReasoningUnavailable(nil).Message; msg != "reasoning service unavailable" {
		t.Errorf("NewReasoningUnavailable(nil).Message = %q", msg)
	}
}
