package history

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestRecordHeartbeat_FirstHasNoInterval(t *testing.T) {
	// Arrange
	repo := mocks.NewMockHistoryRepository()
	recorder := NewRecorder(repo, newTestLogger())
	charger := &domain.Charger{ID: "CP-01"}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Act
	ev, err := recorder.RecordHeartbeat(context.Background(), charger, now)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.IntervalSeconds != nil {
		t.Errorf("expected no interval on first heartbeat, got %v", *ev.IntervalSeconds)
	}
	if ev.Health != domain.HealthNormal {
		t.Errorf("expected normal health, got %s", ev.Health)
	}
	if charger.LastSeen == nil || !charger.LastSeen.Equal(now) {
		t.Errorf("expected last seen advanced to %v, got %v", now, charger.LastSeen)
	}
}

func TestRecordHeartbeat_IntervalBands(t *testing.T) {
	cases := []struct {
		name     string
		interval time.Duration
		want     domain.HeartbeatHealth
	}{
		{"within interval", 30 * time.Second, domain.HealthNormal},
		{"grace band", 50 * time.Second, domain.HealthWarning},
		{"late", 2 * time.Minute, domain.HealthAbnormal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			repo := mocks.NewMockHistoryRepository()
			recorder := NewRecorder(repo, newTestLogger())
			charger := &domain.Charger{ID: "CP-01"}
			first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			recorder.RecordHeartbeat(context.Background(), charger, first)

			// Act
			ev, err := recorder.RecordHeartbeat(context.Background(), charger, first.Add(tc.interval))

			// Assert
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if ev.Health != tc.want {
				t.Errorf("expected %s, got %s", tc.want, ev.Health)
			}
			if ev.IntervalSeconds == nil || *ev.IntervalSeconds != tc.interval.Seconds() {
				t.Errorf("expected interval %v seconds, got %v", tc.interval.Seconds(), ev.IntervalSeconds)
			}
		})
	}
}

func TestRecordStatusChange_DerivesHeldDuration(t *testing.T) {
	// Arrange
	repo := mocks.NewMockHistoryRepository()
	recorder := NewRecorder(repo, newTestLogger())
	charger := &domain.Charger{ID: "CP-01", Status: domain.StatusAvailable}
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	recorder.RecordStatusChange(context.Background(), charger, domain.StatusCharging, "", first)

	// Act
	ev, err := recorder.RecordStatusChange(context.Background(), charger, domain.StatusAvailable, "", first.Add(90*time.Second))

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.PreviousStatus != domain.StatusCharging {
		t.Errorf("expected previous Charging, got %s", ev.PreviousStatus)
	}
	if ev.DurationSeconds == nil || *ev.DurationSeconds != 90 {
		t.Errorf("expected 90s held, got %v", ev.DurationSeconds)
	}
	if charger.Status != domain.StatusAvailable {
		t.Errorf("expected charger row updated, got %s", charger.Status)
	}
}

func TestRecordStatusChange_FirstEventNoDuration(t *testing.T) {
	// Arrange
	repo := mocks.NewMockHistoryRepository()
	recorder := NewRecorder(repo, newTestLogger())
	charger := &domain.Charger{ID: "CP-01", Status: domain.StatusUnknown}

	// Act
	ev, err := recorder.RecordStatusChange(context.Background(), charger, domain.StatusAvailable, "", time.Now())

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.DurationSeconds != nil {
		t.Errorf("expected no held duration on first event, got %v", *ev.DurationSeconds)
	}
}

func TestLogProtocolError_PersistsEntry(t *testing.T) {
	// Arrange
	repo := mocks.NewMockHistoryRepository()
	recorder := NewRecorder(repo, newTestLogger())

	// Act
	recorder.LogProtocolError(context.Background(), "CP-01", "StatusNotification", "PropertyConstraintViolation", "unknown status", []byte(`{}`))

	// Assert
	if len(repo.ErrorLogs) != 1 {
		t.Fatalf("expected one error log, got %d", len(repo.ErrorLogs))
	}
	entry := repo.ErrorLogs[0]
	if entry.Action != "StatusNotification" || entry.ErrorCode != "PropertyConstraintViolation" {
		t.Errorf("unexpected entry %+v", entry)
	}
}
