package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "@every 5m"},
		{spec: "*/15 * * * *"},
		{spec: "0 2 * * *"},
		{spec: "@hourly"},
		{spec: "", wantErr: true},
		{spec: "every five minutes", wantErr: true},
		{spec: "* * * * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSchedule(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestSchedule_InvalidSpec(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	c := NewCron(logger)

	err := Schedule(context.Background(), c, "not a spec", "run-all", func(context.Context) error { return nil }, logger)
	if err == nil {
		t.Fatal("不正なスケジュールはエラーになるべき")
	}
}

func TestSchedule_RunsJobAndLogsError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	c := NewCron(logger)

	done := make(chan struct{}, 1)
	job := func(ctx context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return errors.New("db connection failed")
	}
	if err := Schedule(context.Background(), c, "@every 1s", "cleanup", job, logger); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	c.Start()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("ジョブが実行されませんでした")
	}
	<-c.Stop().Done()

	if !strings.Contains(buf.String(), "cleanup") || !strings.Contains(buf.String(), "db connection failed") {
		t.Errorf("ジョブのエラーがログに記録されるべき: %s", buf.String())
	}
}
