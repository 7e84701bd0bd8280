package solana

import "context"

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	// One logsSubscribe request is issued per program: some providers
	// only honor a single address per subscription.
	Mentions []string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// LogsConn is a single live logs subscription. It is not restartable: any
// transport error is terminal for the connection and the caller reconnects
// by dialing again.
type LogsConn interface {
	// Read blocks until the next notification, a transport error, or ctx is done.
	Read(ctx context.Context) (LogNotification, error)

	// Close closes the underlying connection.
	Close() error
}

// LogsDialer opens logs subscriptions. Implemented by WSDialer; faked in tests.
type LogsDialer interface {
	DialAndSubscribe(ctx context.Context, filter LogsFilter) (LogsConn, error)
}
