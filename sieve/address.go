package sieve

import "strings"

// AddressPart selects the part of an address a test matches against.
type AddressPart interface {
	Object
	// Extract returns the selected part of a bare "local@domain" address.
	// ok is false when the address has no such part.
	Extract(address string) (part string, ok bool)
}

// Core address part codes.
const (
	AddressAll       = 1
	AddressLocalpart = 2
	AddressDomain    = 3
)

var (
	All       AddressPart = &allPart{coreDef("all", AddressAll)}
	Localpart AddressPart = &localPart{coreDef("localpart", AddressLocalpart)}
	Domain    AddressPart = &domainPart{coreDef("domain", AddressDomain)}
)

var coreAddressParts = []AddressPart{nil, All, Localpart, Domain}

type allPart struct{ ObjectDef }

func (p *allPart) Extract(address string) (string, bool) {
	return address, true
}

type localPart struct{ ObjectDef }

func (p *localPart) Extract(address string) (string, bool) {
	i := strings.LastIndexByte(address, '@')
	if i < 0 {
		return address, true
	}
	return address[:i], true
}

type domainPart struct{ ObjectDef }

func (p *domainPart) Extract(address string) (string, bool) {
	i := strings.LastIndexByte(address, '@')
	if i < 0 {
		return "", false
	}
	return address[i+1:], true
}
