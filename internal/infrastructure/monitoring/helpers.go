package monitoring

// SubscriberGauge returns a callback that keeps the subscriber gauge of
// channel in sync. It fits broadcast.Options.OnCountChange.
func (m *Metrics) SubscriberGauge(channel string) func(n int) {
	m.SetSubscribers(channel, 0)
	return func(n int) {
		m.SetSubscribers(channel, n)
	}
}
