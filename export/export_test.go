package export

// WaitIdle blocks until no delivery started by the exporter is running.
func (e *Exporter) WaitIdle() {
	e.wg.Wait()
}

// PendingRetries returns the number of armed retry timers.
func (e *Exporter) PendingRetries() int {
	return e.sched.Pending()
}

// EffectivePolicy returns the policy after normalization.
func (e *Exporter) EffectivePolicy() Policy {
	return e.policy
}

// PolicyNormalize exposes policy normalization.
func PolicyNormalize(p Policy) Policy {
	return p.normalize()
}
