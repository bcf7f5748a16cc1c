package dedupe

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithCapacity presizes the ledger for n replays.
func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.replays = make(map[string]string, n)
			l.sets = make(map[string]string, n/2)
		}
	}
}
