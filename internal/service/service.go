package service

import (
	"context"
	"fmt"
	"net/netip"

	"netfabric/internal/domain"
	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
	"netfabric/internal/ipam"
	"netfabric/internal/repository"
)

// NetworkService provides business logic for device lifecycle and
// network object operations
type NetworkService struct {
	store          eventlog.Store
	repo           *repository.Repository
	alloc          *ipam.Allocator
	eventBus       *EventBus
	allowedParents []netip.Prefix
}

// ParentNotAllowedError is returned when an allocation names a parent
// block outside the configured allow-list. Recoverable: pick an
// allowed parent.
type ParentNotAllowedError struct {
	Parent string
}

func (e *ParentNotAllowedError) Error() string {
	return fmt.Sprintf("parent block %s is not on the allocation allow-list", e.Parent)
}

// NewNetworkService creates a new network service
func NewNetworkService(store eventlog.Store, eventBus *EventBus) *NetworkService {
	return &NetworkService{
		store:    store,
		repo:     repository.New(store),
		alloc:    ipam.New(store),
		eventBus: eventBus,
	}
}

// Allocator exposes the IPAM allocator for direct operator use.
func (s *NetworkService) Allocator() *ipam.Allocator {
	return s.alloc
}

// SetAllowedParents restricts allocation to the given parent blocks.
// An empty list places no restriction. Entries that fail to parse are
// skipped; config validation rejects them before startup.
func (s *NetworkService) SetAllowedParents(parents []string) {
	s.allowedParents = nil
	for _, p := range parents {
		prefix, err := identity.ParseSubnet(p)
		if err != nil {
			continue
		}
		s.allowedParents = append(s.allowedParents, prefix)
	}
}

func (s *NetworkService) checkParent(parent netip.Prefix) error {
	if len(s.allowedParents) == 0 {
		return nil
	}
	for _, p := range s.allowedParents {
		if p == parent {
			return nil
		}
	}
	return &ParentNotAllowedError{Parent: parent.String()}
}

func (s *NetworkService) publish(events []eventlog.Event) {
	for _, ev := range events {
		s.eventBus.Publish(ev)
	}
}

// RegisterDevice creates a new device aggregate in the Planned state.
func (s *NetworkService) RegisterDevice(ctx context.Context, cmd domain.RegisterDevice) (*domain.Device, error) {
	d := domain.NewDevice()
	events, err := d.Decide(cmd)
	if err != nil {
		return nil, err
	}
	sealed, err := s.repo.SaveDevice(ctx, d, cmd.Envelope, events)
	if err != nil {
		return nil, err
	}
	s.publish(sealed)
	return d, nil
}

// deviceCommand runs one command against a loaded device and saves the
// result. Domain rejections and concurrency conflicts surface to the
// caller unchanged.
func (s *NetworkService) deviceCommand(ctx context.Context, id identity.DeviceID, cmd domain.Command) (*domain.Device, error) {
	d, err := s.repo.LoadDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := d.Decide(cmd)
	if err != nil {
		return nil, err
	}
	sealed, err := s.repo.SaveDevice(ctx, d, cmd.CommandEnvelope(), events)
	if err != nil {
		return nil, err
	}
	s.publish(sealed)
	return d, nil
}

// StartProvisioning moves a planned device into provisioning.
func (s *NetworkService) StartProvisioning(ctx context.Context, cmd domain.StartProvisioning) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// CompleteProvisioning moves a provisioning device into configuring.
func (s *NetworkService) CompleteProvisioning(ctx context.Context, cmd domain.CompleteProvisioning) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// ConfigureInterface upserts one interface on a device under
// configuration or maintenance.
func (s *NetworkService) ConfigureInterface(ctx context.Context, cmd domain.ConfigureInterface) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// CompleteConfiguration activates a configured device.
func (s *NetworkService) CompleteConfiguration(ctx context.Context, cmd domain.CompleteConfiguration) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// FailConfiguration marks configuration as failed with a reason.
func (s *NetworkService) FailConfiguration(ctx context.Context, cmd domain.FailConfiguration) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// RetryConfiguration sends a failed device back to configuring.
func (s *NetworkService) RetryConfiguration(ctx context.Context, cmd domain.RetryConfiguration) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// EnterMaintenance takes an active device out of service for a window.
func (s *NetworkService) EnterMaintenance(ctx context.Context, cmd domain.EnterMaintenance) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// ExitMaintenance returns a device to active service.
func (s *NetworkService) ExitMaintenance(ctx context.Context, cmd domain.ExitMaintenance) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// StartDecommissioning begins taking an active device out of service.
func (s *NetworkService) StartDecommissioning(ctx context.Context, cmd domain.StartDecommissioning) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// CompleteDecommissioning moves a device to its terminal state.
func (s *NetworkService) CompleteDecommissioning(ctx context.Context, cmd domain.CompleteDecommissioning) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// RenameDevice changes a device's display name.
func (s *NetworkService) RenameDevice(ctx context.Context, cmd domain.RenameDevice) (*domain.Device, error) {
	return s.deviceCommand(ctx, cmd.DeviceID, cmd)
}

// GetDevice rebuilds a device from its stream.
func (s *NetworkService) GetDevice(ctx context.Context, id identity.DeviceID) (*domain.Device, error) {
	return s.repo.LoadDevice(ctx, id)
}

// CreateVlan creates a VLAN and, when the command names a parent
// block, allocates and binds a subnet for it. The whole chain shares
// the command's correlation: VlanCreated causes SubnetAllocated, which
// causes SubnetBound.
func (s *NetworkService) CreateVlan(ctx context.Context, cmd domain.CreateVlan) (*domain.NetworkObject, error) {
	// Reject a bad or disallowed parent before anything is recorded.
	var parent netip.Prefix
	if cmd.Parent != "" {
		var err error
		parent, err = identity.ParseSubnet(cmd.Parent)
		if err != nil {
			return nil, err
		}
		if err := s.checkParent(parent); err != nil {
			return nil, err
		}
	}

	n := domain.NewNetworkObject()
	events, err := n.Decide(cmd)
	if err != nil {
		return nil, err
	}
	sealed, err := s.repo.SaveNetworkObject(ctx, n, cmd.Envelope, events)
	if err != nil {
		return nil, err
	}
	s.publish(sealed)

	if cmd.Parent == "" {
		return n, nil
	}
	created := sealed[0]

	block, allocated, err := s.alloc.Allocate(ctx, parent, cmd.PrefixLen, "vlan:"+cmd.Name, n.ID.AggregateID(), created.Envelope())
	if err != nil {
		// The VLAN exists; the caller may retry allocation against
		// another parent block.
		return n, err
	}
	s.publish([]eventlog.Event{allocated})

	bind := domain.BindSubnet{
		Meta:            domain.DerivedMeta(allocated.Envelope()),
		NetworkObjectID: n.ID,
		Subnet:          block.String(),
	}
	bindEvents, err := n.Decide(bind)
	if err != nil {
		return n, err
	}
	bound, err := s.repo.SaveNetworkObject(ctx, n, bind.Envelope, bindEvents)
	if err != nil {
		return n, err
	}
	s.publish(bound)
	return n, nil
}

// CreateContainerNetwork creates a container network object.
func (s *NetworkService) CreateContainerNetwork(ctx context.Context, cmd domain.CreateContainerNetwork) (*domain.NetworkObject, error) {
	n := domain.NewNetworkObject()
	events, err := n.Decide(cmd)
	if err != nil {
		return nil, err
	}
	sealed, err := s.repo.SaveNetworkObject(ctx, n, cmd.Envelope, events)
	if err != nil {
		return nil, err
	}
	s.publish(sealed)
	return n, nil
}

// objectCommand runs one command against a loaded network object.
func (s *NetworkService) objectCommand(ctx context.Context, id identity.NetworkObjectID, cmd domain.Command) (*domain.NetworkObject, error) {
	n, err := s.repo.LoadNetworkObject(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := n.Decide(cmd)
	if err != nil {
		return nil, err
	}
	sealed, err := s.repo.SaveNetworkObject(ctx, n, cmd.CommandEnvelope(), events)
	if err != nil {
		return nil, err
	}
	s.publish(sealed)
	return n, nil
}

// AddMember joins a port or container to a network object.
func (s *NetworkService) AddMember(ctx context.Context, cmd domain.AddMember) (*domain.NetworkObject, error) {
	return s.objectCommand(ctx, cmd.NetworkObjectID, cmd)
}

// RemoveMember removes a port or container from a network object.
func (s *NetworkService) RemoveMember(ctx context.Context, cmd domain.RemoveMember) (*domain.NetworkObject, error) {
	return s.objectCommand(ctx, cmd.NetworkObjectID, cmd)
}

// GetNetworkObject rebuilds a network object from its stream.
func (s *NetworkService) GetNetworkObject(ctx context.Context, id identity.NetworkObjectID) (*domain.NetworkObject, error) {
	return s.repo.LoadNetworkObject(ctx, id)
}

// AllocateSubnet carves a block out of a parent on direct operator
// request.
func (s *NetworkService) AllocateSubnet(ctx context.Context, cmd domain.AllocateSubnet) (string, error) {
	parent, err := identity.ParseSubnet(cmd.Parent)
	if err != nil {
		return "", err
	}
	if err := s.checkParent(parent); err != nil {
		return "", err
	}
	block, allocated, err := s.alloc.Allocate(ctx, parent, cmd.PrefixLen, cmd.Purpose, cmd.Owner, cmd.Envelope)
	if err != nil {
		return "", err
	}
	s.publish([]eventlog.Event{allocated})
	return block.String(), nil
}

// ReleaseSubnet returns a block to its parent on direct operator
// request.
func (s *NetworkService) ReleaseSubnet(ctx context.Context, cmd domain.ReleaseSubnet) error {
	parent, err := identity.ParseSubnet(cmd.Parent)
	if err != nil {
		return err
	}
	block, err := identity.ParseSubnet(cmd.Block)
	if err != nil {
		return err
	}
	released, err := s.alloc.Release(ctx, parent, block, cmd.Envelope)
	if err != nil {
		return err
	}
	s.publish([]eventlog.Event{released})
	return nil
}

// History returns the ordered event stream of one aggregate.
func (s *NetworkService) History(ctx context.Context, id identity.AggregateID) ([]eventlog.Event, error) {
	return s.store.Read(ctx, id)
}

// Operation returns every event recorded under one correlation id,
// across aggregates.
func (s *NetworkService) Operation(ctx context.Context, id identity.CorrelationID) ([]eventlog.Event, error) {
	return s.store.ReadByCorrelation(ctx, id)
}
