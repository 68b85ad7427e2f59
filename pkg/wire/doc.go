// Package wire defines the CBOR wire format of the publish/subscribe protocol
// spoken between devices, the broker and host tools.
//
// Every packet is a CBOR map with integer keys, carried in a length-prefixed
// frame (see package transport). A packet type selects which keys are
// meaningful:
//
//	{
//	  1: type,        // uint8
//	  2: clientId,    // Connect
//	  3: keepAlive,   // Connect, seconds
//	  4: packetId,    // Subscribe, SubAck
//	  5: topic,       // Publish
//	  6: payload,     // Publish, CBOR encoded application data
//	  7: retain,      // Publish
//	  8: filters,     // Subscribe
//	  9: code         // ConnAck, SubAck
//	}
//
// # Topics
//
// Topics are "/" separated. Subscription filters may use "+" to match a
// single level and a trailing "#" to match any remaining levels.
package wire
