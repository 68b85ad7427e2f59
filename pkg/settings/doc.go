// Package settings applies run-time settings received from the broker.
//
// A device subscribes to "<prefix>/settings/#". The remainder of a topic is a
// path into the settings value: struct fields are addressed by their
// `settings` tag (or lowercased name), arrays and slices by index:
//
//	dt/sinara/stabilizer/00-11-22-33-44-55/settings/afe/1      -> Settings.AFE[1]
//	dt/sinara/stabilizer/00-11-22-33-44-55/settings/stream_target
//
// Payloads are CBOR encoded values of the addressed field. After a value is
// decoded the whole settings value is validated if it implements Validator;
// a rejected change is rolled back. Every request is answered on
// "<prefix>/response".
package settings
