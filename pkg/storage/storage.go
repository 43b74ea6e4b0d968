package storage

// Sink is the line oriented output of one device.
type Sink interface {
	// WriteLine appends line verbatim. After Close it returns constant.ErrSinkClosed.
	WriteLine(line string) error
	// Close is idempotent.
	Close() error
	Path() string
}
