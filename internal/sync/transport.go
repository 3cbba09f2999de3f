package sync

// Transport is the broadcast-channel abstraction Broadcaster drives:
// post a message to every peer sharing the channel, and register a
// callback to be invoked for each message received. OnMessage returns
// an unsubscribe func; Close tears down the transport's underlying
// connection.
type Transport interface {
	Post(msg Message) error
	OnMessage(cb func(Message)) (unsubscribe func())
	Close() error
}
