// Package broker implements the host-side publish/subscribe broker that
// devices and host tools connect to.
//
// The broker speaks the length-prefixed CBOR packet protocol defined in
// package wire. Each accepted TCP connection must open with a Connect
// packet. After the handshake the broker serves Subscribe, Publish, Ping
// and Disconnect packets until the client leaves or stays silent for longer
// than its announced keep-alive interval.
//
// Publications flagged as retained are stored per topic and replayed to
// later subscribers. Publishing an empty retained payload clears the topic.
package broker
