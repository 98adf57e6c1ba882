package identity

import "fmt"

// VlanID is an 802.1Q VLAN identifier. The valid range is 1-4094;
// 0 and 4095 are reserved by the standard.
type VlanID uint16

const (
	vlanMin = 1
	vlanMax = 4094
)

// NewVlanID validates and wraps a raw VLAN number.
func NewVlanID(n uint16) (VlanID, error) {
	switch {
	case n == 0 || n == 4095:
		return 0, fmt.Errorf("vlan id %d is reserved", n)
	case n < vlanMin || n > vlanMax:
		return 0, fmt.Errorf("vlan id %d out of range (valid %d-%d)", n, vlanMin, vlanMax)
	}
	return VlanID(n), nil
}

// Value returns the raw VLAN number.
func (v VlanID) Value() uint16 {
	return uint16(v)
}

func (v VlanID) String() string {
	return fmt.Sprintf("vlan-%d", uint16(v))
}
