package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestRequestReply(t *testing.T) {
	req := NewRequest("B", "A", "ping", Payload{"n": 1})
	if req.ID == "" {
		t.Fatal("expect a correlation id")
	}
	if other := NewRequest("B", "A", "ping", nil); other.ID == req.ID {
		t.Fatalf("ids must differ, got %s twice", req.ID)
	}

	resp := req.Reply(Payload{"pong": true})
	if resp.ID != req.ID || resp.Kind != KindResponse {
		t.Fatalf("bad response: %+v", resp)
	}
	if resp.Source != "A" || resp.Destination != "B" {
		t.Fatalf("expect A -> B, got %s -> %s", resp.Source, resp.Destination)
	}
	if !resp.IsReply() || resp.Err() != nil {
		t.Fatalf("response should be a reply without error")
	}
}

func TestFailCarriesCode(t *testing.T) {
	req := NewRequest("B", "A", "missing", nil)
	fail := req.Fail(CodeRouteNotFound, "missing")

	err := fail.Err()
	if !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("expect ErrRouteNotFound, got %v", err)
	}
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "missing" {
		t.Fatalf("expect RemoteError with message, got %v", err)
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{ErrUnreachable, CodeUnreachable},
		{fmt.Errorf("wrapped: %w", ErrRateLimited), CodeRateLimited},
		{&RemoteError{Code: CodeUnauthorized}, CodeUnauthorized},
		{errors.New("boom"), CodeHandlerFailed},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.code {
			t.Errorf("CodeOf(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}

func TestJSONShape(t *testing.T) {
	msg := &Message{ID: "1", Kind: KindError, Error: &ErrorDetail{Code: CodeUnreachable}}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["error_detail"]; !ok {
		t.Fatalf("expect error_detail field, got %s", data)
	}
	if _, ok := raw["route"]; ok {
		t.Fatalf("empty route should be omitted, got %s", data)
	}
}
