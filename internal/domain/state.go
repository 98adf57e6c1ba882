package domain

// State represents the lifecycle state of a device
type State string

const (
	StatePlanned         State = "planned"         // Registered, not yet provisioned
	StateProvisioning    State = "provisioning"    // Hardware/VM being brought up
	StateConfiguring     State = "configuring"     // Interfaces and services being applied
	StateActive          State = "active"          // In service
	StateMaintenance     State = "maintenance"     // Temporarily out of service, scheduled window
	StateFailed          State = "failed"          // Configuration failed, carries a reason
	StateDecommissioning State = "decommissioning" // Being taken out of service
	StateDecommissioned  State = "decommissioned"  // Terminal; history preserved
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDecommissioned
}
