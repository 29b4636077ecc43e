// Package secrets holds the packet id obfuscation keys that official clients
// of each packet version were built with.
package secrets

import (
	"sort"

	"badc0de.net/pkg/go-ragnarok/net/crypt"
)

// obfuscationKeys maps a client packet version to its key triple. Servers
// must be configured with the same triple for gameplay packets to be
// understood.
var obfuscationKeys = map[int]crypt.Keys{
	20110817: {0x053D5CED, 0x3DED6DED, 0x6DED6DED},
	20120410: {0x01581359, 0x452D6FFA, 0x6AFB6E2E},
	20130618: {0x434115DE, 0x34A10FE9, 0x6791428E},
	20140402: {0x15D3271C, 0x004D725B, 0x111A3A37},
	20150513: {0x62C86D09, 0x75944F17, 0x112C133D},
}

// ObfuscationKeys returns the keys of the client built for version. Keys are
// tied to an exact client build, so there is no fallback to older versions.
func ObfuscationKeys(version int) (crypt.Keys, bool) {
	k, ok := obfuscationKeys[version]
	return k, ok
}

// Versions lists the packet versions with known keys, oldest first.
func Versions() []int {
	out := make([]int, 0, len(obfuscationKeys))
	for v := range obfuscationKeys {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
