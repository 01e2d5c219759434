// Package requirements models the host preconditions that gate fetch
// workers: which conditions an operator demands, and which of those are
// currently not met.
package requirements

import "strings"

// Flags is a bitmask of host preconditions. A Flags value is read either
// as "required" (what the operator asked for) or as "not met" (the subset
// of required conditions that currently fail); zero means nothing is
// required, or everything required holds.
type Flags uint32

const (
	// Network requires any usable network connection.
	Network Flags = 1 << iota
	// UnmeteredNetwork requires a connection not flagged as metered.
	UnmeteredNetwork
	// Charging requires external power (met on hosts without a battery).
	Charging
	// DeviceIdle requires the host to be mostly idle.
	DeviceIdle
	// StorageNotLow requires free space on the cache volume.
	StorageNotLow
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Network, "network"},
	{UnmeteredNetwork, "unmetered-network"},
	{Charging, "charging"},
	{DeviceIdle, "device-idle"},
	{StorageNotLow, "storage-not-low"},
}

// Has reports whether every bit of other is set in f.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// NotMet returns the subset of f whose bits are set in failing.
func (f Flags) NotMet(failing Flags) Flags {
	return f & failing
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// Names returns the set bits as their flag names.
func (f Flags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

// FromNames parses flag names back into a mask.
func FromNames(names []string) (Flags, bool) {
	var f Flags
	for _, name := range names {
		matched := false
		for _, fn := range flagNames {
			if fn.name == name {
				f |= fn.flag
				matched = true
				break
			}
		}
		if !matched {
			return 0, false
		}
	}
	return f, true
}
