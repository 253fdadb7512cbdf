package queue

import "time"

func (s *Service) SetClock(now func() time.Time)   { s.now = now }
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }
func (h *Handoff) SetClock(now func() time.Time)   { h.now = now }
