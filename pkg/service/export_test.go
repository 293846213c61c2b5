package service

import "context"

// FireJob invokes the scheduled job body, including its panic guard.
func FireJob(s *Scheduler, ctx context.Context) {
	s.fire(ctx)
}
