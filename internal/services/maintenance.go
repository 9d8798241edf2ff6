package services

import (
	"context"
	"time"

	"github.com/dietchse/basic-login-ap/pkg/logger"
)

type SweepReport struct {
	Sessions      int64 `json:"sessions"`
	PendingLogins int64 `json:"pendingLogins"`
	Tokens        int64 `json:"tokens"`
}

// Janitor removes expired sessions, pending second-factor logins and
// single-use tokens.
type Janitor struct {
	Sessions *SessionRegistry
	Pending  *PendingLoginStore
	Tokens   *TokenStore
}

func NewJanitor(sessions *SessionRegistry, pending *PendingLoginStore, tokens *TokenStore) *Janitor {
	return &Janitor{Sessions: sessions, Pending: pending, Tokens: tokens}
}

func (j *Janitor) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	var err error

	if report.Sessions, err = j.Sessions.SweepExpired(ctx); err != nil {
		return report, err
	}
	if report.PendingLogins, err = j.Pending.SweepExpired(ctx); err != nil {
		return report, err
	}
	if report.Tokens, err = j.Tokens.SweepExpired(ctx); err != nil {
		return report, err
	}
	return report, nil
}

func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := j.SweepOnce(ctx)
				if err != nil {
					logger.Error("sweep_failed", err, nil)
					continue
				}
				if report.Sessions+report.PendingLogins+report.Tokens > 0 {
					logger.Info("sweep_completed", map[string]interface{}{
						"sessions":      report.Sessions,
						"pendingLogins": report.PendingLogins,
						"tokens":        report.Tokens,
					})
				}
			}
		}
	}()
}
