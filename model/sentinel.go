package model

import "time"

// Known sentinel environments.
const (
	EnvDev     = "dev"
	EnvTest    = "test"
	EnvSandbox = "sandbox"
	EnvProd    = "prod"
)

// EnvironmentSentinel is the single-row fuse read before any destructive
// admin action. It is seeded once at migration time and never updated.
type EnvironmentSentinel struct {
	ID        int       `json:"id"`
	Project   string    `json:"project"`
	Env       string    `json:"env"`
	CreatedAt time.Time `json:"created_at"`
}

// Allows reports whether the sentinel's environment is in the caller's
// allow-list. A missing sentinel never reaches this point; callers refuse
// first.
func (s *EnvironmentSentinel) Allows(envs ...string) bool {
	for _, env := range envs {
		if s.Env == env {
			return true
		}
	}
	return false
}
