package domain

import (
	"fmt"
	"sort"

	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
)

// NetworkObjectKind distinguishes the two network object flavors
type NetworkObjectKind string

const (
	ObjectKindVlan             NetworkObjectKind = "vlan"
	ObjectKindContainerNetwork NetworkObjectKind = "container_network"
)

// NetworkObject is the VLAN / container network aggregate. Devices
// reference it by id; it may own at most one allocated subnet.
type NetworkObject struct {
	ID     identity.NetworkObjectID
	Kind   NetworkObjectKind
	Name   string
	VlanID identity.VlanID

	// Driver is set for container networks only.
	Driver string

	// Subnet is the bound block in CIDR text, empty while unbound.
	Subnet string

	members map[string]struct{}

	// Version is the sequence number of the last applied event.
	Version uint64
}

// NewNetworkObject returns an empty network object awaiting its root
// event.
func NewNetworkObject() *NetworkObject {
	return &NetworkObject{members: make(map[string]struct{})}
}

// Exists reports whether the root event has been applied.
func (n *NetworkObject) Exists() bool {
	return n.ID != ""
}

// HasMember reports whether a port or container is a member.
func (n *NetworkObject) HasMember(member string) bool {
	_, ok := n.members[member]
	return ok
}

// Members returns the member set in sorted order.
func (n *NetworkObject) Members() []string {
	out := make([]string, 0, len(n.members))
	for m := range n.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Decide validates a command against the current state and returns the
// single event it produces.
func (n *NetworkObject) Decide(cmd Command) ([]eventlog.Event, error) {
	switch c := cmd.(type) {
	case CreateVlan:
		if n.Exists() {
			return nil, n.reject("CreateVlan", string(n.Kind))
		}
		return n.emit(c, c.NetworkObjectID, KindVlanCreated, VlanCreated{
			NetworkObjectID: c.NetworkObjectID,
			Name:            c.Name,
			VlanID:          c.VlanID,
		})

	case CreateContainerNetwork:
		if n.Exists() {
			return nil, n.reject("CreateContainerNetwork", string(n.Kind))
		}
		return n.emit(c, c.NetworkObjectID, KindContainerNetworkCreated, ContainerNetworkCreated{
			NetworkObjectID: c.NetworkObjectID,
			Name:            c.Name,
			Driver:          c.Driver,
		})

	case BindSubnet:
		if !n.Exists() {
			return nil, n.reject("BindSubnet", "uncreated")
		}
		if n.Subnet != "" {
			return nil, n.reject("BindSubnet", "subnet already bound")
		}
		return n.emit(c, n.ID, KindSubnetBound, SubnetBound{NetworkObjectID: n.ID, Subnet: c.Subnet})

	case AddMember:
		if !n.Exists() {
			return nil, n.reject("AddMember", "uncreated")
		}
		if n.HasMember(c.Member) {
			return nil, n.reject("AddMember", "member already present")
		}
		return n.emit(c, n.ID, KindMemberAdded, MemberAdded{NetworkObjectID: n.ID, Member: c.Member})

	case RemoveMember:
		if !n.Exists() || !n.HasMember(c.Member) {
			return nil, n.reject("RemoveMember", "member absent")
		}
		return n.emit(c, n.ID, KindMemberRemoved, MemberRemoved{NetworkObjectID: n.ID, Member: c.Member})

	default:
		return nil, fmt.Errorf("network object aggregate cannot handle command %T", cmd)
	}
}

func (n *NetworkObject) emit(cmd Command, id identity.NetworkObjectID, kind string, payload any) ([]eventlog.Event, error) {
	ev, err := eventlog.NewEvent(id.AggregateID(), kind, payload, identity.DerivedEnvelope(cmd.CommandEnvelope()))
	if err != nil {
		return nil, err
	}
	return []eventlog.Event{ev}, nil
}

func (n *NetworkObject) reject(command, current string) error {
	return &InvalidTransitionError{AggregateID: n.ID.AggregateID(), Current: current, Command: command}
}

// Apply folds one event into the aggregate.
func (n *NetworkObject) Apply(ev eventlog.Event) error {
	if n.members == nil {
		n.members = make(map[string]struct{})
	}

	switch ev.Kind {
	case KindVlanCreated:
		var p VlanCreated
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		n.ID = p.NetworkObjectID
		n.Kind = ObjectKindVlan
		n.Name = p.Name
		n.VlanID = p.VlanID

	case KindContainerNetworkCreated:
		var p ContainerNetworkCreated
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		n.ID = p.NetworkObjectID
		n.Kind = ObjectKindContainerNetwork
		n.Name = p.Name
		n.Driver = p.Driver

	case KindSubnetBound:
		var p SubnetBound
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		n.Subnet = p.Subnet

	case KindMemberAdded:
		var p MemberAdded
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		n.members[p.Member] = struct{}{}

	case KindMemberRemoved:
		var p MemberRemoved
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		delete(n.members, p.Member)

	default:
		return fmt.Errorf("network object aggregate cannot apply event kind %s", ev.Kind)
	}

	n.Version = ev.Sequence
	return nil
}
