package services

import "time"

// SetClock replaces the time source for tests.
func (s *ProductService) SetClock(now func() time.Time) {
	s.now = now
}
