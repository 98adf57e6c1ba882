package domain

import (
	"time"

	"netfabric/internal/identity"
)

// Command is implemented by every command type. A command carries its
// own message identity so the events it produces can cite it as their
// cause.
type Command interface {
	CommandEnvelope() identity.Envelope
}

// Meta is the message identity embedded in every command.
type Meta struct {
	Envelope identity.Envelope
}

// CommandEnvelope implements Command.
func (m Meta) CommandEnvelope() identity.Envelope {
	return m.Envelope
}

// NewMeta creates metadata for a root command: one that starts a new
// logical operation.
func NewMeta() Meta {
	return Meta{Envelope: identity.NewRootEnvelope()}
}

// DerivedMeta creates metadata for a command issued in reaction to an
// earlier message, inheriting its correlation.
func DerivedMeta(parent identity.Envelope) Meta {
	return Meta{Envelope: identity.DerivedEnvelope(parent)}
}

// Device commands. Each is accepted only in specific lifecycle states;
// see Device.Decide.

type RegisterDevice struct {
	Meta
	DeviceID identity.DeviceID
	Name     string
	Vendor   string
	Model    string
}

type StartProvisioning struct {
	Meta
	DeviceID identity.DeviceID
}

type CompleteProvisioning struct {
	Meta
	DeviceID identity.DeviceID
}

type ConfigureInterface struct {
	Meta
	DeviceID  identity.DeviceID
	Interface string
	Address   string
	Enabled   bool
}

type CompleteConfiguration struct {
	Meta
	DeviceID identity.DeviceID
}

type FailConfiguration struct {
	Meta
	DeviceID identity.DeviceID
	Reason   string
}

type RetryConfiguration struct {
	Meta
	DeviceID identity.DeviceID
}

type EnterMaintenance struct {
	Meta
	DeviceID    identity.DeviceID
	WindowStart time.Time
	WindowEnd   time.Time
}

type ExitMaintenance struct {
	Meta
	DeviceID identity.DeviceID
}

type StartDecommissioning struct {
	Meta
	DeviceID identity.DeviceID
}

type CompleteDecommissioning struct {
	Meta
	DeviceID identity.DeviceID
}

type RenameDevice struct {
	Meta
	DeviceID identity.DeviceID
	Name     string
}

// Network object commands.

type CreateVlan struct {
	Meta
	NetworkObjectID identity.NetworkObjectID
	Name            string
	VlanID          identity.VlanID
	// Parent is the address block a subnet for this VLAN is carved
	// from. Empty means no automatic allocation.
	Parent    string
	PrefixLen int
}

type CreateContainerNetwork struct {
	Meta
	NetworkObjectID identity.NetworkObjectID
	Name            string
	Driver          string
}

type BindSubnet struct {
	Meta
	NetworkObjectID identity.NetworkObjectID
	Subnet          string
}

type AddMember struct {
	Meta
	NetworkObjectID identity.NetworkObjectID
	Member          string
}

type RemoveMember struct {
	Meta
	NetworkObjectID identity.NetworkObjectID
	Member          string
}

// IPAM commands. Handled by the allocator, not by an aggregate.

type AllocateSubnet struct {
	Meta
	Parent    string
	PrefixLen int
	Purpose   string
	Owner     identity.AggregateID
}

type ReleaseSubnet struct {
	Meta
	Parent string
	Block  string
}
