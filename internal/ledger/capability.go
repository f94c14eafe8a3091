package ledger

import (
	"fmt"
	"sort"
)

// Capability is an optional ledger feature chosen at deploy time
type Capability int

const (
	DestroyAsset    Capability = 1
	UpdateAsset     Capability = 2
	ToggleTransfers Capability = 3
	RevokeAsset     Capability = 4
)

// ERC-165 interface ids the ledger contract reports for each capability
var capabilityCodes = map[Capability][4]byte{
	DestroyAsset:    {0x9d, 0x11, 0x87, 0x70},
	UpdateAsset:     {0x0d, 0x04, 0xc3, 0xb8},
	ToggleTransfers: {0xbe, 0xdb, 0x86, 0xfb},
	RevokeAsset:     {0x20, 0xc5, 0x42, 0x9b},
}

// Valid reports whether c is a known capability
func (c Capability) Valid() bool {
	_, ok := capabilityCodes[c]
	return ok
}

// InterfaceCode returns the ERC-165 id of c
func (c Capability) InterfaceCode() ([4]byte, error) {
	code, ok := capabilityCodes[c]
	if !ok {
		return [4]byte{}, fmt.Errorf("%w: %d", ErrUnknownCapability, int(c))
	}
	return code, nil
}

// InterfaceCodes maps capabilities to interface ids, keeping their order
func InterfaceCodes(caps []Capability) ([][4]byte, error) {
	codes := make([][4]byte, 0, len(caps))
	for _, c := range caps {
		code, err := c.InterfaceCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// AllCapabilities lists the known capabilities in ascending order
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilityCodes))
	for c := range capabilityCodes {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
