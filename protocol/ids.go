// Package protocol models the semantic contracts of the river-specific
// WM protocol objects (window_manager_v1, window_v1, output_v1,
// seat_v1, node_v1) named in spec.md §4.4/§6: object identity, the
// event-emission and request-handling interfaces, and the protocol
// error taxonomy. Wire serialization itself is out of scope (spec.md
// §1); nothing here encodes or decodes bytes.
package protocol

import "fmt"

// ObjectID identifies a WM protocol object, the river-protocol analog
// of wire.go's wl ObjectID.
type ObjectID uint32

func (id ObjectID) String() string { return fmt.Sprintf("#%d", uint32(id)) }

// Serial is a manage-sequence correlation number: the window_manager_v1
// singleton emits update(serial) and awaits a matching
// ack_update(serial), mirroring display.go's Sync/Roundtrip callback
// correlation.
type Serial uint32
