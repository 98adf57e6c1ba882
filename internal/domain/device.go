package domain

import (
	"fmt"
	"time"

	"netfabric/internal/eventlog"
	"netfabric/internal/identity"
)

// Interface is one configured device interface.
type Interface struct {
	Name    string `cbor:"name"`
	Address string `cbor:"address"`
	Enabled bool   `cbor:"enabled"`
}

// MaintenanceWindow is the scheduled window attached to the
// Maintenance state.
type MaintenanceWindow struct {
	Start time.Time `cbor:"start"`
	End   time.Time `cbor:"end"`
}

// Device is the router/switch aggregate. Its state is derived solely
// from its own event stream: mutate only through Decide + Apply.
type Device struct {
	ID         identity.DeviceID
	Name       string
	Vendor     string
	Model      string
	Interfaces []Interface
	State      State

	// FailureReason is set while State is Failed.
	FailureReason string
	// Window is set while State is Maintenance.
	Window MaintenanceWindow

	// Version is the sequence number of the last applied event.
	Version uint64
}

// NewDevice returns an empty device awaiting its root event.
func NewDevice() *Device {
	return &Device{}
}

// Exists reports whether the root event has been applied.
func (d *Device) Exists() bool {
	return d.ID != ""
}

// Decide validates a command against the current state and returns the
// single event it produces. An out-of-state command fails with
// InvalidTransitionError and produces nothing.
func (d *Device) Decide(cmd Command) ([]eventlog.Event, error) {
	switch c := cmd.(type) {
	case RegisterDevice:
		if d.Exists() {
			return nil, d.reject("RegisterDevice")
		}
		return d.emit(c, KindDeviceRegistered, DeviceRegistered{
			DeviceID: c.DeviceID,
			Name:     c.Name,
			Vendor:   c.Vendor,
			Model:    c.Model,
		})

	case StartProvisioning:
		return d.transition(c, "StartProvisioning", StatePlanned, StateProvisioning, StateTransitioned{})

	case CompleteProvisioning:
		return d.transition(c, "CompleteProvisioning", StateProvisioning, StateConfiguring, StateTransitioned{})

	case ConfigureInterface:
		if d.State != StateConfiguring && d.State != StateMaintenance {
			return nil, d.reject("ConfigureInterface")
		}
		return d.emit(c, KindInterfaceConfigured, InterfaceConfigured{
			DeviceID: d.ID,
			Name:     c.Interface,
			Address:  c.Address,
			Enabled:  c.Enabled,
		})

	case CompleteConfiguration:
		return d.transition(c, "CompleteConfiguration", StateConfiguring, StateActive, StateTransitioned{})

	case FailConfiguration:
		return d.transition(c, "FailConfiguration", StateConfiguring, StateFailed, StateTransitioned{Reason: c.Reason})

	case RetryConfiguration:
		return d.transition(c, "RetryConfiguration", StateFailed, StateConfiguring, StateTransitioned{})

	case EnterMaintenance:
		return d.transition(c, "EnterMaintenance", StateActive, StateMaintenance, StateTransitioned{
			WindowStart: c.WindowStart,
			WindowEnd:   c.WindowEnd,
		})

	case ExitMaintenance:
		return d.transition(c, "ExitMaintenance", StateMaintenance, StateActive, StateTransitioned{})

	case StartDecommissioning:
		return d.transition(c, "StartDecommissioning", StateActive, StateDecommissioning, StateTransitioned{})

	case CompleteDecommissioning:
		return d.transition(c, "CompleteDecommissioning", StateDecommissioning, StateDecommissioned, StateTransitioned{})

	case RenameDevice:
		if !d.Exists() || d.State.Terminal() {
			return nil, d.reject("RenameDevice")
		}
		return d.emit(c, KindDeviceRenamed, DeviceRenamed{DeviceID: d.ID, Name: c.Name})

	default:
		return nil, fmt.Errorf("device aggregate cannot handle command %T", cmd)
	}
}

// transition emits the StateTransitioned event for a (from, to) pair,
// rejecting the command unless the device is currently in from.
func (d *Device) transition(cmd Command, name string, from, to State, data StateTransitioned) ([]eventlog.Event, error) {
	if !d.Exists() || d.State != from {
		return nil, d.reject(name)
	}
	data.DeviceID = d.ID
	data.From = from
	data.To = to
	return d.emit(cmd, KindStateTransitioned, data)
}

func (d *Device) emit(cmd Command, kind string, payload any) ([]eventlog.Event, error) {
	ev, err := eventlog.NewEvent(d.streamID(cmd), kind, payload, identity.DerivedEnvelope(cmd.CommandEnvelope()))
	if err != nil {
		return nil, err
	}
	return []eventlog.Event{ev}, nil
}

func (d *Device) reject(command string) error {
	current := string(d.State)
	if !d.Exists() {
		current = "unregistered"
	}
	return &InvalidTransitionError{AggregateID: d.ID.AggregateID(), Current: current, Command: command}
}

// streamID resolves the stream key before the root event is applied.
func (d *Device) streamID(cmd Command) identity.AggregateID {
	if d.Exists() {
		return d.ID.AggregateID()
	}
	if c, ok := cmd.(RegisterDevice); ok {
		return c.DeviceID.AggregateID()
	}
	return ""
}

// Apply folds one event into the aggregate. Application is idempotent
// for state-entry events: replaying the same event reaches the same
// state.
func (d *Device) Apply(ev eventlog.Event) error {
	switch ev.Kind {
	case KindDeviceRegistered:
		var p DeviceRegistered
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		d.ID = p.DeviceID
		d.Name = p.Name
		d.Vendor = p.Vendor
		d.Model = p.Model
		d.State = StatePlanned

	case KindDeviceRenamed:
		var p DeviceRenamed
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		d.Name = p.Name

	case KindInterfaceConfigured:
		var p InterfaceConfigured
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		d.upsertInterface(Interface{Name: p.Name, Address: p.Address, Enabled: p.Enabled})

	case KindStateTransitioned:
		var p StateTransitioned
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		d.State = p.To
		d.FailureReason = ""
		d.Window = MaintenanceWindow{}
		switch p.To {
		case StateFailed:
			d.FailureReason = p.Reason
		case StateMaintenance:
			d.Window = MaintenanceWindow{Start: p.WindowStart, End: p.WindowEnd}
		}

	default:
		return fmt.Errorf("device aggregate cannot apply event kind %s", ev.Kind)
	}

	d.Version = ev.Sequence
	return nil
}

func (d *Device) upsertInterface(iface Interface) {
	for i := range d.Interfaces {
		if d.Interfaces[i].Name == iface.Name {
			d.Interfaces[i] = iface
			return
		}
	}
	d.Interfaces = append(d.Interfaces, iface)
}
