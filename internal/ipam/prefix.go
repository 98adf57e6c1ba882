package ipam

import (
	"net/netip"
	"sort"
)

// firstFree walks candidate /prefixLen blocks from the bottom of
// parent upward and returns the first one that overlaps no allocated
// block. Candidates are naturally aligned, so the walk covers every
// possible child block exactly once.
func firstFree(parent netip.Prefix, prefixLen int, allocated map[netip.Prefix]struct{}) (netip.Prefix, bool) {
	addr := parent.Addr()
	for parent.Contains(addr) {
		candidate := netip.PrefixFrom(addr, prefixLen)
		if free(candidate, allocated) {
			return candidate, true
		}

		next := lastAddr(candidate).Next()
		if !next.IsValid() {
			break
		}
		addr = next
	}
	return netip.Prefix{}, false
}

func free(candidate netip.Prefix, allocated map[netip.Prefix]struct{}) bool {
	for block := range allocated {
		if candidate.Overlaps(block) {
			return false
		}
	}
	return true
}

// lastAddr returns the highest address inside a block.
func lastAddr(p netip.Prefix) netip.Addr {
	if p.Addr().Is4() {
		a := p.Addr().As4()
		setHostBits(a[:], p.Bits())
		return netip.AddrFrom4(a)
	}
	a := p.Addr().As16()
	setHostBits(a[:], p.Bits())
	return netip.AddrFrom16(a)
}

func setHostBits(a []byte, bits int) {
	for i := bits; i < len(a)*8; i++ {
		a[i/8] |= 1 << (7 - i%8)
	}
}

func sortPrefixes(blocks []netip.Prefix) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Addr() != blocks[j].Addr() {
			return blocks[i].Addr().Less(blocks[j].Addr())
		}
		return blocks[i].Bits() < blocks[j].Bits()
	})
}
