package domain

import (
	"time"

	"netfabric/internal/identity"
)

// Event kind tags as stored in the log.
const (
	KindDeviceRegistered        = "DeviceRegistered"
	KindDeviceRenamed           = "DeviceRenamed"
	KindInterfaceConfigured     = "InterfaceConfigured"
	KindStateTransitioned       = "StateTransitioned"
	KindVlanCreated             = "VlanCreated"
	KindContainerNetworkCreated = "ContainerNetworkCreated"
	KindSubnetBound             = "SubnetBound"
	KindMemberAdded             = "MemberAdded"
	KindMemberRemoved           = "MemberRemoved"
	KindSubnetAllocated         = "SubnetAllocated"
	KindSubnetReleased          = "SubnetReleased"
)

// DeviceRegistered is the root event of a device stream.
type DeviceRegistered struct {
	DeviceID identity.DeviceID `cbor:"device_id"`
	Name     string            `cbor:"name"`
	Vendor   string            `cbor:"vendor"`
	Model    string            `cbor:"model"`
}

// DeviceRenamed records a display-name change.
type DeviceRenamed struct {
	DeviceID identity.DeviceID `cbor:"device_id"`
	Name     string            `cbor:"name"`
}

// InterfaceConfigured records an interface upsert, keyed by name.
type InterfaceConfigured struct {
	DeviceID identity.DeviceID `cbor:"device_id"`
	Name     string            `cbor:"name"`
	Address  string            `cbor:"address"`
	Enabled  bool              `cbor:"enabled"`
}

// StateTransitioned records one lifecycle transition. Reason is set
// when entering Failed; the window fields when entering Maintenance.
type StateTransitioned struct {
	DeviceID    identity.DeviceID `cbor:"device_id"`
	From        State             `cbor:"from"`
	To          State             `cbor:"to"`
	Reason      string            `cbor:"reason"`
	WindowStart time.Time         `cbor:"window_start"`
	WindowEnd   time.Time         `cbor:"window_end"`
}

// VlanCreated is the root event of a VLAN stream.
type VlanCreated struct {
	NetworkObjectID identity.NetworkObjectID `cbor:"network_object_id"`
	Name            string                   `cbor:"name"`
	VlanID          identity.VlanID          `cbor:"vlan_id"`
}

// ContainerNetworkCreated is the root event of a container network
// stream.
type ContainerNetworkCreated struct {
	NetworkObjectID identity.NetworkObjectID `cbor:"network_object_id"`
	Name            string                   `cbor:"name"`
	Driver          string                   `cbor:"driver"`
}

// SubnetBound records a network object taking ownership of an
// allocated subnet.
type SubnetBound struct {
	NetworkObjectID identity.NetworkObjectID `cbor:"network_object_id"`
	Subnet          string                   `cbor:"subnet"`
}

// MemberAdded records a port or container joining a network object.
type MemberAdded struct {
	NetworkObjectID identity.NetworkObjectID `cbor:"network_object_id"`
	Member          string                   `cbor:"member"`
}

// MemberRemoved records a port or container leaving a network object.
type MemberRemoved struct {
	NetworkObjectID identity.NetworkObjectID `cbor:"network_object_id"`
	Member          string                   `cbor:"member"`
}

// SubnetAllocated records a block carved out of a parent. Written to
// the parent block's allocation stream.
type SubnetAllocated struct {
	Parent  string              `cbor:"parent"`
	Block   string              `cbor:"block"`
	Purpose string              `cbor:"purpose"`
	Owner   identity.AggregateID `cbor:"owner"`
}

// SubnetReleased records a block returned to its parent. The block is
// immediately reusable by future allocations.
type SubnetReleased struct {
	Parent string `cbor:"parent"`
	Block  string `cbor:"block"`
}
