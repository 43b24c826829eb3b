package model

import "time"

// ================ Config ================

type AssistantConfig struct {
	// ID of an existing assistant; created on startup when empty.
	ID    string `envconfig:"ASSISTANT_ID"`
	Model string `envconfig:"ASSISTANT_MODEL" default:"gpt-4o-mini"`
	Name  string `envconfig:"ASSISTANT_NAME" default:"StructuredOutputAssistant"`
}

type PollConfig struct {
	TimeoutSeconds        int `envconfig:"POLL_TIMEOUT_SECONDS" default:"300"`
	MaxAttempts           int `envconfig:"POLL_MAX_ATTEMPTS" default:"15"`
	InitialWaitSeconds    int `envconfig:"POLL_INITIAL_WAIT_SECONDS" default:"4"`
	SubsequentWaitSeconds int `envconfig:"POLL_SUBSEQUENT_WAIT_SECONDS" default:"2"`
}

// Timeout returns the wall-clock bound for one run.
func (c PollConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InitialWait returns the sleep before the first status retry.
func (c PollConfig) InitialWait() time.Duration {
	return time.Duration(c.InitialWaitSeconds) * time.Second
}

// SubsequentWait returns the sleep between later status retries.
func (c PollConfig) SubsequentWait() time.Duration {
	return time.Duration(c.SubsequentWaitSeconds) * time.Second
}

type SessionConfig struct {
	// TTL bounds persisted session data in the store.
	TTL string `envconfig:"SESSION_TTL" default:"15m"`
	// StaleAfter is the age past which a thread is eligible for forced
	// teardown via the maintenance operation.
	StaleAfter string `envconfig:"SESSION_STALE_AFTER" default:"5m"`
}
