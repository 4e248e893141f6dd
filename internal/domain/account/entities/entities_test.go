package entities

import (
	"testing"
	"time"
)

func TestAuthSession_State(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session *AuthSession
		want    LoginState
	}{
		{"nil session", nil, StateIdle},
		{"fresh", &AuthSession{}, StateAwaitingCode},
		{"password", &AuthSession{PasswordRequired: true}, StateAwaitingPassword},
		{"locked", &AuthSession{PasswordRequired: true, CooldownUntil: now.Add(time.Second)}, StateCooldownLocked},
		{"cooldown elapsed", &AuthSession{PasswordRequired: true, CooldownUntil: now}, StateAwaitingPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.State(now); got != tt.want {
				t.Errorf("State() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAuthSession_CooldownRemaining(t *testing.T) {
	now := time.Now()
	s := &AuthSession{CooldownUntil: now.Add(30 * time.Second)}

	if got := s.CooldownRemaining(now); got != 30*time.Second {
		t.Errorf("CooldownRemaining() = %s, want 30s", got)
	}
	if got := s.CooldownRemaining(now.Add(time.Minute)); got != 0 {
		t.Errorf("CooldownRemaining() after expiry = %s, want 0", got)
	}
}
