// Package persistence implements the ConfigStore local snapshot cache:
// device, point, alarm-rule and virtual-point reads are mirrored to a
// local CBOR file after each successful ConfigStore read, so a restart
// during a ConfigStore outage can still start workers from the last
// known-good snapshot.
package persistence
