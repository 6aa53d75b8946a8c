package store

import "time"

// Option configures a persistent key store.
type Option func(*options)

type options struct {
	kdf KDFParams
	now func() time.Time
}

func newOptions(opts []Option) options {
	o := options{kdf: DefaultKDFParams(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithKDFParams overrides the KDF and cost used when sealing new keys.
// Existing entries open with the parameters they were sealed with.
func WithKDFParams(p KDFParams) Option {
	return func(o *options) { o.kdf = p }
}

// WithClock overrides the time source used for entry timestamps and certificates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
