// Package addrfamily implements the Address/Prefix tagged value type
// shared by every protocol module (spec.md section 3): a family-tagged
// (v4/v6) address and prefix with the operations the decision pipeline,
// policy engine, and link-state core all need — length, byte encoding,
// usability, host-prefix coercion, containment, supernet-of, and
// routability.
package addrfamily

import (
	"fmt"
	"net/netip"
)

// Family identifies an address family.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Address is a family-tagged address. It wraps netip.Addr so the
// protocol packages get the family tag and the routability/usability
// predicates spec.md section 3 asks for, without re-deriving them from
// netip.Addr at every call site.
type Address struct {
	addr netip.Addr
}

// NewAddress tags a netip.Addr with its family. Returns an error if
// addr is not a valid v4 or v6 address.
func NewAddress(addr netip.Addr) (Address, error) {
	if !addr.IsValid() {
		return Address{}, fmt.Errorf("addrfamily: invalid address")
	}
	return Address{addr: addr.Unmap()}, nil
}

// MustAddress is NewAddress, panicking on error. Intended for
// compile-time-known addresses (test fixtures, well-known constants).
func MustAddress(addr netip.Addr) Address {
	a, err := NewAddress(addr)
	if err != nil {
		panic(err)
	}
	return a
}

// Family returns the address's tagged family.
func (a Address) Family() Family {
	if a.addr.Is4() {
		return FamilyV4
	}
	return FamilyV6
}

// Len returns the address length in bits (32 for v4, 128 for v6).
func (a Address) Len() int {
	if a.Family() == FamilyV4 {
		return 32
	}
	return 128
}

// Bytes returns the address's big-endian byte encoding.
func (a Address) Bytes() []byte {
	return a.addr.AsSlice()
}

// IsUsable reports whether the address is valid for use as a peering
// or forwarding address: not the unspecified address, not a multicast
// address, and not a loopback address (a usable routing peer address
// is none of these).
func (a Address) IsUsable() bool {
	return a.addr.IsValid() &&
		!a.addr.IsUnspecified() &&
		!a.addr.IsMulticast() &&
		!a.addr.IsLoopback()
}

// HostPrefix coerces the address to its host prefix (/32 for v4, /128
// for v6).
func (a Address) HostPrefix() Prefix {
	bits := a.Len()
	p, _ := a.addr.Prefix(bits)
	return Prefix{prefix: p}
}

// Unwrap returns the underlying netip.Addr for interop with code that
// takes a plain netip.Addr (e.g. wire codecs).
func (a Address) Unwrap() netip.Addr {
	return a.addr
}

// Equal reports whether two Addresses carry the same value.
func (a Address) Equal(b Address) bool {
	return a.addr == b.addr
}

func (a Address) String() string {
	return a.addr.String()
}

// Prefix is a family-tagged prefix (address + mask length).
type Prefix struct {
	prefix netip.Prefix
}

// NewPrefix tags a netip.Prefix. Returns an error if p is not valid.
func NewPrefix(p netip.Prefix) (Prefix, error) {
	if !p.IsValid() {
		return Prefix{}, fmt.Errorf("addrfamily: invalid prefix")
	}
	return Prefix{prefix: p.Masked()}, nil
}

// MustPrefix is NewPrefix, panicking on error.
func MustPrefix(p netip.Prefix) Prefix {
	pp, err := NewPrefix(p)
	if err != nil {
		panic(err)
	}
	return pp
}

// ZeroPrefix returns the family's zero prefix (0.0.0.0/0 or ::/0), the
// default spec.md section 3 names for prefixes that may be defaulted.
func ZeroPrefix(fam Family) Prefix {
	if fam == FamilyV4 {
		return Prefix{prefix: netip.PrefixFrom(netip.IPv4Unspecified(), 0)}
	}
	return Prefix{prefix: netip.PrefixFrom(netip.IPv6Unspecified(), 0)}
}

// Family returns the prefix's tagged family.
func (p Prefix) Family() Family {
	if p.prefix.Addr().Is4() {
		return FamilyV4
	}
	return FamilyV6
}

// Len returns the prefix's mask length in bits.
func (p Prefix) Len() int {
	return p.prefix.Bits()
}

// Addr returns the prefix's masked base address.
func (p Prefix) Addr() Address {
	return Address{addr: p.prefix.Addr()}
}

// Bytes returns the prefix's base address's byte encoding (the mask
// length is carried separately by Len, matching the wire convention
// used by both BGP NLRI and link-state TLVs: a length octet followed
// by only as many address octets as the mask requires).
func (p Prefix) Bytes() []byte {
	full := p.prefix.Addr().AsSlice()
	n := (p.Len() + 7) / 8
	if n > len(full) {
		n = len(full)
	}
	return full[:n]
}

// Contains reports whether p contains addr.
func (p Prefix) Contains(addr Address) bool {
	return p.prefix.Contains(addr.addr)
}

// SupernetOf reports whether p is a supernet of other: same family, p's
// mask is no longer than other's, and p's network contains other's
// base address.
func (p Prefix) SupernetOf(other Prefix) bool {
	if p.Family() != other.Family() {
		return false
	}
	if p.Len() > other.Len() {
		return false
	}
	return p.prefix.Contains(other.prefix.Addr())
}

// IsRoutable reports whether the prefix is usable as a routing
// destination: its base address is not unspecified, not loopback, and
// not multicast, mirroring Address.IsUsable for prefixes.
func (p Prefix) IsRoutable() bool {
	a := p.prefix.Addr()
	return a.IsValid() && !a.IsUnspecified() && !a.IsMulticast() && !a.IsLoopback()
}

// Unwrap returns the underlying netip.Prefix.
func (p Prefix) Unwrap() netip.Prefix {
	return p.prefix
}

// Equal reports whether two Prefixes carry the same value.
func (p Prefix) Equal(o Prefix) bool {
	return p.prefix == o.prefix
}

func (p Prefix) String() string {
	return p.prefix.String()
}
