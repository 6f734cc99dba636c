package shmcache

// KillTracker kills the tracker without a stop message
func (s *Service) KillTracker() error {
	return s.tracker.Kill()
}
