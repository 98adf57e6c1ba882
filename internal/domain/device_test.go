package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
)

// decideApply runs one command through Decide and folds the resulting
// event back into the device, assigning the next sequence number the
// way the log would.
func decideApply(t *testing.T, d *Device, cmd Command) eventlog.Event {
	t.Helper()
	events, err := d.Decide(cmd)
	if err != nil {
		t.Fatalf("decide %T: %v", cmd, err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one event from %T, got %d", cmd, len(events))
	}
	events[0].Sequence = d.Version + 1
	if err := d.Apply(events[0]); err != nil {
		t.Fatalf("apply %s: %v", events[0].Kind, err)
	}
	return events[0]
}

// deviceInState builds a registered device and walks it to the target
// state through the normal transition path.
func deviceInState(t *testing.T, state State) *Device {
	t.Helper()
	d := NewDevice()
	id := identity.NewDeviceID()
	decideApply(t, d, RegisterDevice{Meta: NewMeta(), DeviceID: id, Name: "r1", Vendor: "generic", Model: "x1"})

	paths := map[State][]Command{
		StatePlanned:      {},
		StateProvisioning: {StartProvisioning{Meta: NewMeta(), DeviceID: id}},
		StateConfiguring: {
			StartProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteProvisioning{Meta: NewMeta(), DeviceID: id},
		},
		StateActive: {
			StartProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteConfiguration{Meta: NewMeta(), DeviceID: id},
		},
		StateMaintenance: {
			StartProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteConfiguration{Meta: NewMeta(), DeviceID: id},
			EnterMaintenance{Meta: NewMeta(), DeviceID: id},
		},
		StateFailed: {
			StartProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteProvisioning{Meta: NewMeta(), DeviceID: id},
			FailConfiguration{Meta: NewMeta(), DeviceID: id, Reason: "boot loop"},
		},
		StateDecommissioning: {
			StartProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteConfiguration{Meta: NewMeta(), DeviceID: id},
			StartDecommissioning{Meta: NewMeta(), DeviceID: id},
		},
		StateDecommissioned: {
			StartProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteProvisioning{Meta: NewMeta(), DeviceID: id},
			CompleteConfiguration{Meta: NewMeta(), DeviceID: id},
			StartDecommissioning{Meta: NewMeta(), DeviceID: id},
			CompleteDecommissioning{Meta: NewMeta(), DeviceID: id},
		},
	}

	steps, ok := paths[state]
	if !ok {
		t.Fatalf("no path to state %s", state)
	}
	for _, cmd := range steps {
		decideApply(t, d, cmd)
	}
	if d.State != state {
		t.Fatalf("walk ended in %s, wanted %s", d.State, state)
	}
	return d
}

func TestDeviceRegister(t *testing.T) {
	d := NewDevice()
	id := identity.NewDeviceID()
	cmd := RegisterDevice{Meta: NewMeta(), DeviceID: id, Name: "core-sw-1", Vendor: "generic", Model: "gs-48"}

	ev := decideApply(t, d, cmd)
	if ev.Kind != KindDeviceRegistered {
		t.Errorf("expected %s, got %s", KindDeviceRegistered, ev.Kind)
	}
	if ev.AggregateID != id.AggregateID() {
		t.Errorf("event targets wrong stream %s", ev.AggregateID)
	}
	if d.State != StatePlanned {
		t.Errorf("expected new device in %s, got %s", StatePlanned, d.State)
	}
	if d.Name != "core-sw-1" || d.Vendor != "generic" || d.Model != "gs-48" {
		t.Error("registration data not applied")
	}

	// Event identity derives from the command.
	if ev.CorrelationID != cmd.Envelope.CorrelationID {
		t.Error("event must inherit the command's correlation id")
	}
	if ev.CausationID != identity.CausationID(cmd.Envelope.ID) {
		t.Error("event causation must be the command's message id")
	}

	// Re-registering an existing device is invalid.
	_, err := d.Decide(RegisterDevice{Meta: NewMeta(), DeviceID: id, Name: "again"})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestDeviceAllowedTransitions(t *testing.T) {
	cases := []struct {
		name string
		from State
		cmd  func(identity.DeviceID) Command
		to   State
	}{
		{"planned to provisioning", StatePlanned, func(id identity.DeviceID) Command { return StartProvisioning{Meta: NewMeta(), DeviceID: id} }, StateProvisioning},
		{"provisioning to configuring", StateProvisioning, func(id identity.DeviceID) Command { return CompleteProvisioning{Meta: NewMeta(), DeviceID: id} }, StateConfiguring},
		{"configuring to active", StateConfiguring, func(id identity.DeviceID) Command { return CompleteConfiguration{Meta: NewMeta(), DeviceID: id} }, StateActive},
		{"configuring to failed", StateConfiguring, func(id identity.DeviceID) Command { return FailConfiguration{Meta: NewMeta(), DeviceID: id, Reason: "bad image"} }, StateFailed},
		{"failed back to configuring", StateFailed, func(id identity.DeviceID) Command { return RetryConfiguration{Meta: NewMeta(), DeviceID: id} }, StateConfiguring},
		{"active to maintenance", StateActive, func(id identity.DeviceID) Command { return EnterMaintenance{Meta: NewMeta(), DeviceID: id} }, StateMaintenance},
		{"maintenance to active", StateMaintenance, func(id identity.DeviceID) Command { return ExitMaintenance{Meta: NewMeta(), DeviceID: id} }, StateActive},
		{"active to decommissioning", StateActive, func(id identity.DeviceID) Command { return StartDecommissioning{Meta: NewMeta(), DeviceID: id} }, StateDecommissioning},
		{"decommissioning to decommissioned", StateDecommissioning, func(id identity.DeviceID) Command { return CompleteDecommissioning{Meta: NewMeta(), DeviceID: id} }, StateDecommissioned},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := deviceInState(t, tc.from)
			ev := decideApply(t, d, tc.cmd(d.ID))
			if ev.Kind != KindStateTransitioned {
				t.Errorf("expected %s, got %s", KindStateTransitioned, ev.Kind)
			}
			var p StateTransitioned
			if err := ev.DecodePayload(&p); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if p.From != tc.from || p.To != tc.to {
				t.Errorf("payload records %s->%s, wanted %s->%s", p.From, p.To, tc.from, tc.to)
			}
			if d.State != tc.to {
				t.Errorf("device in %s, wanted %s", d.State, tc.to)
			}
		})
	}
}

func TestDeviceDisallowedTransitions(t *testing.T) {
	// Every transition command against every state it is not accepted
	// in. The aggregate must be left untouched and no event emitted.
	allowed := map[string]State{
		"StartProvisioning":       StatePlanned,
		"CompleteProvisioning":    StateProvisioning,
		"CompleteConfiguration":   StateConfiguring,
		"FailConfiguration":       StateConfiguring,
		"RetryConfiguration":      StateFailed,
		"EnterMaintenance":        StateActive,
		"ExitMaintenance":         StateMaintenance,
		"StartDecommissioning":    StateActive,
		"CompleteDecommissioning": StateDecommissioning,
	}
	commands := map[string]func(identity.DeviceID) Command{
		"StartProvisioning":       func(id identity.DeviceID) Command { return StartProvisioning{Meta: NewMeta(), DeviceID: id} },
		"CompleteProvisioning":    func(id identity.DeviceID) Command { return CompleteProvisioning{Meta: NewMeta(), DeviceID: id} },
		"CompleteConfiguration":   func(id identity.DeviceID) Command { return CompleteConfiguration{Meta: NewMeta(), DeviceID: id} },
		"FailConfiguration":       func(id identity.DeviceID) Command { return FailConfiguration{Meta: NewMeta(), DeviceID: id} },
		"RetryConfiguration":      func(id identity.DeviceID) Command { return RetryConfiguration{Meta: NewMeta(), DeviceID: id} },
		"EnterMaintenance":        func(id identity.DeviceID) Command { return EnterMaintenance{Meta: NewMeta(), DeviceID: id} },
		"ExitMaintenance":         func(id identity.DeviceID) Command { return ExitMaintenance{Meta: NewMeta(), DeviceID: id} },
		"StartDecommissioning":    func(id identity.DeviceID) Command { return StartDecommissioning{Meta: NewMeta(), DeviceID: id} },
		"CompleteDecommissioning": func(id identity.DeviceID) Command { return CompleteDecommissioning{Meta: NewMeta(), DeviceID: id} },
	}
	states := []State{
		StatePlanned, StateProvisioning, StateConfiguring, StateActive,
		StateMaintenance, StateFailed, StateDecommissioning, StateDecommissioned,
	}

	for name, build := range commands {
		for _, state := range states {
			if allowed[name] == state {
				continue
			}
			t.Run(name+" in "+string(state), func(t *testing.T) {
				d := deviceInState(t, state)
				before := *d

				events, err := d.Decide(build(d.ID))
				var invalid *InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidTransitionError, got %v", err)
				}
				if len(events) != 0 {
					t.Error("rejected command must emit no events")
				}
				if invalid.Current != string(state) {
					t.Errorf("error names state %q, wanted %q", invalid.Current, state)
				}
				if invalid.Command != name {
					t.Errorf("error names command %q, wanted %q", invalid.Command, name)
				}
				if !reflect.DeepEqual(before, *d) {
					t.Error("rejected command must not mutate the aggregate")
				}
			})
		}
	}
}

func TestDeviceFailedCarriesReason(t *testing.T) {
	d := deviceInState(t, StateConfiguring)
	decideApply(t, d, FailConfiguration{Meta: NewMeta(), DeviceID: d.ID, Reason: "image checksum mismatch"})
	if d.FailureReason != "image checksum mismatch" {
		t.Errorf("expected failure reason carried, got %q", d.FailureReason)
	}

	decideApply(t, d, RetryConfiguration{Meta: NewMeta(), DeviceID: d.ID})
	if d.FailureReason != "" {
		t.Error("failure reason must be cleared when leaving Failed")
	}
}

func TestDeviceMaintenanceCarriesWindow(t *testing.T) {
	d := deviceInState(t, StateActive)
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(2 * time.Hour)

	decideApply(t, d, EnterMaintenance{Meta: NewMeta(), DeviceID: d.ID, WindowStart: start, WindowEnd: end})
	if !d.Window.Start.Equal(start) || !d.Window.End.Equal(end) {
		t.Errorf("expected window [%v, %v], got [%v, %v]", start, end, d.Window.Start, d.Window.End)
	}

	decideApply(t, d, ExitMaintenance{Meta: NewMeta(), DeviceID: d.ID})
	if !d.Window.Start.IsZero() {
		t.Error("window must be cleared when leaving Maintenance")
	}
}

func TestDeviceConfigureInterface(t *testing.T) {
	d := deviceInState(t, StateConfiguring)

	decideApply(t, d, ConfigureInterface{Meta: NewMeta(), DeviceID: d.ID, Interface: "eth0", Address: "10.0.0.1/24", Enabled: true})
	decideApply(t, d, ConfigureInterface{Meta: NewMeta(), DeviceID: d.ID, Interface: "eth1", Enabled: false})

	// Upsert by name, not append.
	decideApply(t, d, ConfigureInterface{Meta: NewMeta(), DeviceID: d.ID, Interface: "eth0", Address: "10.0.0.2/24", Enabled: true})

	if len(d.Interfaces) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(d.Interfaces))
	}
	if d.Interfaces[0].Address != "10.0.0.2/24" {
		t.Errorf("expected eth0 address updated, got %s", d.Interfaces[0].Address)
	}

	// Not accepted once active.
	decideApply(t, d, CompleteConfiguration{Meta: NewMeta(), DeviceID: d.ID})
	_, err := d.Decide(ConfigureInterface{Meta: NewMeta(), DeviceID: d.ID, Interface: "eth2"})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestDeviceRename(t *testing.T) {
	d := deviceInState(t, StateActive)
	decideApply(t, d, RenameDevice{Meta: NewMeta(), DeviceID: d.ID, Name: "core-sw-1a"})
	if d.Name != "core-sw-1a" {
		t.Errorf("expected rename applied, got %s", d.Name)
	}

	term := deviceInState(t, StateDecommissioned)
	_, err := term.Decide(RenameDevice{Meta: NewMeta(), DeviceID: term.ID, Name: "zombie"})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected rename rejected in terminal state, got %v", err)
	}
}

func TestDeviceIdempotentApply(t *testing.T) {
	d := deviceInState(t, StatePlanned)
	ev := decideApply(t, d, StartProvisioning{Meta: NewMeta(), DeviceID: d.ID})

	// Replaying the same state-entry event reaches the same state.
	if err := d.Apply(ev); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if d.State != StateProvisioning {
		t.Errorf("expected %s after re-apply, got %s", StateProvisioning, d.State)
	}
	if d.Version != ev.Sequence {
		t.Errorf("expected version %d after re-apply, got %d", ev.Sequence, d.Version)
	}
}

func TestDeviceLifecycleScenario(t *testing.T) {
	// Register R1, walk Planned->Provisioning->Configuring->Active,
	// then attempt Active->Provisioning.
	d := NewDevice()
	id := identity.NewDeviceID()
	decideApply(t, d, RegisterDevice{Meta: NewMeta(), DeviceID: id, Name: "R1", Vendor: "generic", Model: "r-9"})
	decideApply(t, d, StartProvisioning{Meta: NewMeta(), DeviceID: id})
	decideApply(t, d, CompleteProvisioning{Meta: NewMeta(), DeviceID: id})
	decideApply(t, d, CompleteConfiguration{Meta: NewMeta(), DeviceID: id})

	if d.State != StateActive {
		t.Fatalf("expected Active, got %s", d.State)
	}
	version := d.Version

	_, err := d.Decide(StartProvisioning{Meta: NewMeta(), DeviceID: id})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if d.State != StateActive {
		t.Errorf("state must remain Active, got %s", d.State)
	}
	if d.Version != version {
		t.Errorf("version must remain %d, got %d", version, d.Version)
	}
}
