package notify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// 3件中2件目が登録解除済みの場合、2件目だけが無効化され、次回の配信は2件宛になることを検証
func TestAdminPusher_DeactivatesOnlyUnregisteredToken(t *testing.T) {
	repo := newMemoryTokenRepo("token-1", "token-2", "token-3")
	sender := &mockPushSender{
		sendMulticastFn: func(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
			results := make([]SendResult, len(tokens))
			for i, tok := range tokens {
				results[i] = SendResult{Token: tok}
				if tok == "token-2" {
					results[i].Err = fmt.Errorf("%w: push service responded 410", ErrTokenUnregistered)
				}
			}
			return results, nil
		},
	}
	rec := newRecordingRecorder()
	pusher := NewAdminPusher(repo, sender, discardLogger(), rec)
	ctx := context.Background()

	report, err := pusher.Push(ctx, Message{Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("Push error = %v", err)
	}
	want := FanoutReport{Outcome: OutcomePartial, Success: 2, Failure: 1, Deactivated: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if got := repo.inactive(); !reflect.DeepEqual(got, []string{"token-2"}) {
		t.Errorf("inactive tokens = %v, want [token-2]", got)
	}

	if _, err := pusher.Push(ctx, Message{Title: "t2", Body: "b2"}); err != nil {
		t.Fatalf("second Push error = %v", err)
	}
	if got := sender.calls[1]; !reflect.DeepEqual(got, []string{"token-1", "token-3"}) {
		t.Errorf("second fan-out tokens = %v, want [token-1 token-3]", got)
	}
	if rec.deactivated != 1 {
		t.Errorf("deactivated metric = %d, want 1", rec.deactivated)
	}
}

func TestAdminPusher_TransientFailureKeepsToken(t *testing.T) {
	repo := newMemoryTokenRepo("token-1")
	sender := &mockPushSender{
		sendMulticastFn: func(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
			return []SendResult{{Token: tokens[0], Err: errors.New("push service responded 503")}}, nil
		},
	}
	pusher := NewAdminPusher(repo, sender, discardLogger(), nil)

	report, err := pusher.Push(context.Background(), Message{})
	if err != nil {
		t.Fatalf("Push error = %v", err)
	}
	if report.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q, want %q", report.Outcome, OutcomeFailed)
	}
	if got := repo.inactive(); len(got) != 0 {
		t.Errorf("inactive tokens = %v, want none", got)
	}
}

func TestAdminPusher_InvalidTokenIsDeactivated(t *testing.T) {
	repo := newMemoryTokenRepo("garbage")
	sender := &mockPushSender{
		sendMulticastFn: func(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
			return []SendResult{{Token: "garbage", Err: fmt.Errorf("%w: malformed", ErrTokenInvalid)}}, nil
		},
	}
	pusher := NewAdminPusher(repo, sender, discardLogger(), nil)

	if _, err := pusher.Push(context.Background(), Message{}); err != nil {
		t.Fatalf("Push error = %v", err)
	}
	if got := repo.inactive(); !reflect.DeepEqual(got, []string{"garbage"}) {
		t.Errorf("inactive tokens = %v, want [garbage]", got)
	}
}

func TestAdminPusher_Skips(t *testing.T) {
	tests := []struct {
		name   string
		repo   *memoryTokenRepo
		sender PushSender
	}{
		{"no sender configured", newMemoryTokenRepo("token-1"), nil},
		{"no admin tokens", newMemoryTokenRepo(), &mockPushSender{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecordingRecorder()
			pusher := NewAdminPusher(tt.repo, tt.sender, discardLogger(), rec)
			report, err := pusher.Push(context.Background(), Message{})
			if err != nil {
				t.Fatalf("Push error = %v", err)
			}
			if report.Outcome != OutcomeSkipped {
				t.Errorf("Outcome = %q, want skipped", report.Outcome)
			}
			if got := rec.get(ChannelPush); !reflect.DeepEqual(got, []Outcome{OutcomeSkipped}) {
				t.Errorf("recorded = %v, want [skipped]", got)
			}
		})
	}
}

func TestAdminPusher_SenderError(t *testing.T) {
	repo := newMemoryTokenRepo("token-1", "token-2")
	sender := &mockPushSender{
		sendMulticastFn: func(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
			return nil, errors.New("encode failed")
		},
	}
	pusher := NewAdminPusher(repo, sender, discardLogger(), nil)

	report, err := pusher.Push(context.Background(), Message{})
	if err == nil {
		t.Fatal("expected error")
	}
	if report.Outcome != OutcomeFailed || report.Failure != 2 {
		t.Errorf("report = %+v, want failed with 2 failures", report)
	}
	if got := repo.inactive(); len(got) != 0 {
		t.Errorf("inactive tokens = %v, want none", got)
	}
}
