package service

import (
	"context"
	"errors"
	"testing"

	"netfabric/internal/domain"
	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
	"netfabric/internal/ipam"
)

func newTestService(t *testing.T) (*NetworkService, eventlog.Store, chan eventlog.Event) {
	t.Helper()
	store := eventlog.NewMemoryStore()
	bus := NewEventBus()
	feed := make(chan eventlog.Event, 64)
	bus.Subscribe(feed)
	return NewNetworkService(store, bus), store, feed
}

func TestDeviceLifecycleThroughService(t *testing.T) {
	svc, _, feed := newTestService(t)
	ctx := context.Background()
	id := identity.NewDeviceID()

	if _, err := svc.RegisterDevice(ctx, domain.RegisterDevice{Meta: domain.NewMeta(), DeviceID: id, Name: "r1", Vendor: "generic", Model: "r-9"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.StartProvisioning(ctx, domain.StartProvisioning{Meta: domain.NewMeta(), DeviceID: id}); err != nil {
		t.Fatalf("start provisioning: %v", err)
	}

	d, err := svc.GetDevice(ctx, id)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if d.State != domain.StateProvisioning || d.Version != 2 {
		t.Errorf("expected provisioning at version 2, got %s at %d", d.State, d.Version)
	}

	// Both stored events reached the bus.
	if got := len(feed); got != 2 {
		t.Errorf("expected 2 events on the bus, got %d", got)
	}

	// Out-of-state command surfaces the domain rejection.
	_, err = svc.CompleteConfiguration(ctx, domain.CompleteConfiguration{Meta: domain.NewMeta(), DeviceID: id})
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestCreateVlanAllocatesAndBinds(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	id := identity.NewNetworkObjectID()
	vid, err := identity.NewVlanID(300)
	if err != nil {
		t.Fatalf("vlan id: %v", err)
	}

	cmd := domain.CreateVlan{
		Meta:            domain.NewMeta(),
		NetworkObjectID: id,
		Name:            "storage",
		VlanID:          vid,
		Parent:          "10.0.0.0/16",
		PrefixLen:       24,
	}
	n, err := svc.CreateVlan(ctx, cmd)
	if err != nil {
		t.Fatalf("create vlan: %v", err)
	}
	if n.Subnet != "10.0.0.0/24" {
		t.Errorf("expected first /24 bound, got %q", n.Subnet)
	}

	// The whole chain shares the command's correlation:
	// VlanCreated <- SubnetAllocated <- SubnetBound.
	chain, err := store.ReadByCorrelation(ctx, cmd.Envelope.CorrelationID)
	if err != nil {
		t.Fatalf("read correlation: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 correlated events, got %d", len(chain))
	}

	byKind := make(map[string]eventlog.Event)
	for _, ev := range chain {
		byKind[ev.Kind] = ev
	}
	created, ok := byKind[domain.KindVlanCreated]
	if !ok {
		t.Fatal("missing VlanCreated")
	}
	allocated, ok := byKind[domain.KindSubnetAllocated]
	if !ok {
		t.Fatal("missing SubnetAllocated")
	}
	bound, ok := byKind[domain.KindSubnetBound]
	if !ok {
		t.Fatal("missing SubnetBound")
	}

	if created.CausationID != identity.CausationID(cmd.Envelope.ID) {
		t.Error("VlanCreated must be caused by the command")
	}
	if allocated.CausationID != identity.CausationID(created.ID) {
		t.Error("SubnetAllocated must be caused by the VlanCreated event")
	}
	if bound.CausationID != identity.CausationID(allocated.ID) {
		t.Error("SubnetBound must be caused by the SubnetAllocated event")
	}

	var payload domain.SubnetAllocated
	if err := allocated.DecodePayload(&payload); err != nil {
		t.Fatalf("decode allocation: %v", err)
	}
	if payload.Owner != id.AggregateID() {
		t.Errorf("allocation owner is %s, wanted %s", payload.Owner, id)
	}
}

func TestCreateVlanWithoutParent(t *testing.T) {
	svc, _, _ := newTestService(t)
	vid, _ := identity.NewVlanID(10)

	n, err := svc.CreateVlan(context.Background(), domain.CreateVlan{
		Meta:            domain.NewMeta(),
		NetworkObjectID: identity.NewNetworkObjectID(),
		Name:            "mgmt",
		VlanID:          vid,
	})
	if err != nil {
		t.Fatalf("create vlan: %v", err)
	}
	if n.Subnet != "" {
		t.Errorf("expected no subnet bound, got %q", n.Subnet)
	}
}

func TestCreateVlanAllocatorExhausted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Fill the tiny parent first.
	if _, err := svc.AllocateSubnet(ctx, domain.AllocateSubnet{Meta: domain.NewMeta(), Parent: "10.1.0.0/24", PrefixLen: 24, Purpose: "filler", Owner: "op"}); err != nil {
		t.Fatalf("fill parent: %v", err)
	}

	vid, _ := identity.NewVlanID(20)
	n, err := svc.CreateVlan(ctx, domain.CreateVlan{
		Meta:            domain.NewMeta(),
		NetworkObjectID: identity.NewNetworkObjectID(),
		Name:            "overflow",
		VlanID:          vid,
		Parent:          "10.1.0.0/24",
		PrefixLen:       24,
	})
	var exhausted *ipam.NoAvailableSubnetError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected NoAvailableSubnetError, got %v", err)
	}
	// The VLAN itself exists, unbound.
	if n == nil || n.Subnet != "" {
		t.Error("expected created vlan with no subnet")
	}
}

func TestAllocationParentAllowlist(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	svc.SetAllowedParents([]string{"10.0.0.0/16"})

	if _, err := svc.AllocateSubnet(ctx, domain.AllocateSubnet{Meta: domain.NewMeta(), Parent: "10.0.0.0/16", PrefixLen: 24, Purpose: "test", Owner: "op"}); err != nil {
		t.Fatalf("allocate from listed parent: %v", err)
	}

	_, err := svc.AllocateSubnet(ctx, domain.AllocateSubnet{Meta: domain.NewMeta(), Parent: "192.168.0.0/16", PrefixLen: 24, Purpose: "test", Owner: "op"})
	var notAllowed *ParentNotAllowedError
	if !errors.As(err, &notAllowed) {
		t.Fatalf("expected ParentNotAllowedError, got %v", err)
	}

	// A VLAN naming a denied parent is rejected before anything is
	// recorded.
	vid, _ := identity.NewVlanID(30)
	id := identity.NewNetworkObjectID()
	_, err = svc.CreateVlan(ctx, domain.CreateVlan{
		Meta:            domain.NewMeta(),
		NetworkObjectID: id,
		Name:            "denied",
		VlanID:          vid,
		Parent:          "192.168.0.0/16",
		PrefixLen:       24,
	})
	if !errors.As(err, &notAllowed) {
		t.Fatalf("expected ParentNotAllowedError from CreateVlan, got %v", err)
	}
	if events, err := store.Read(ctx, id.AggregateID()); err != nil || len(events) != 0 {
		t.Errorf("expected empty stream for rejected vlan, got %d events (err %v)", len(events), err)
	}

	// An empty list places no restriction.
	svc.SetAllowedParents(nil)
	if _, err := svc.AllocateSubnet(ctx, domain.AllocateSubnet{Meta: domain.NewMeta(), Parent: "192.168.0.0/16", PrefixLen: 24, Purpose: "test", Owner: "op"}); err != nil {
		t.Fatalf("allocate with empty allow-list: %v", err)
	}
}

func TestSubnetReleaseThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	block, err := svc.AllocateSubnet(ctx, domain.AllocateSubnet{Meta: domain.NewMeta(), Parent: "10.2.0.0/16", PrefixLen: 24, Purpose: "test", Owner: "op"})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := svc.ReleaseSubnet(ctx, domain.ReleaseSubnet{Meta: domain.NewMeta(), Parent: "10.2.0.0/16", Block: block}); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := svc.AllocateSubnet(ctx, domain.AllocateSubnet{Meta: domain.NewMeta(), Parent: "10.2.0.0/16", PrefixLen: 24, Purpose: "test", Owner: "op"})
	if err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if again != block {
		t.Errorf("expected released block %s reused, got %s", block, again)
	}
}

func TestMembershipThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := identity.NewNetworkObjectID()

	if _, err := svc.CreateContainerNetwork(ctx, domain.CreateContainerNetwork{Meta: domain.NewMeta(), NetworkObjectID: id, Name: "app-net", Driver: "bridge"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AddMember(ctx, domain.AddMember{Meta: domain.NewMeta(), NetworkObjectID: id, Member: "web-1"}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	n, err := svc.GetNetworkObject(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !n.HasMember("web-1") {
		t.Error("expected member web-1 present")
	}

	if _, err := svc.RemoveMember(ctx, domain.RemoveMember{Meta: domain.NewMeta(), NetworkObjectID: id, Member: "web-1"}); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	n, err = svc.GetNetworkObject(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.HasMember("web-1") {
		t.Error("expected member web-1 removed")
	}
}
