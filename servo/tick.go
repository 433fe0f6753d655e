package servo

// PollMillisecond runs the coarse-cadence housekeeping from the
// background loop. Nothing here touches ISR-owned state except through
// fields that are safe to nudge monotonically.
func (s *Servo) PollMillisecond() {
	// Power limit recovery: wound down per cycle in the ISR, wound
	// back up slowly here so a spike doesn't pin the limit.
	if s.powerScale < 1.0 {
		s.powerScale = LimitVal(s.powerScale+0.005, 0.05, 1.0)
	}
}
