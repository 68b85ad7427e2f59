// Package pubsub implements the client side of the publish/subscribe
// protocol defined in package wire.
//
// Session is the device client: it runs over a netstack.Stack, never blocks
// and makes progress only when polled. It connects to the broker, restores
// its subscriptions after every reconnect, keeps the connection alive with
// pings and queues received publications until the owner drains them.
//
// Conn is the host client used by tools and tests. It owns a regular TCP
// connection and a receive goroutine, and delivers publications to handlers.
package pubsub
