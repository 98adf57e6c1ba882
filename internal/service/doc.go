// Package service is the command-in entry point. It loads aggregates
// through the repository, runs their decision logic, saves the
// resulting events, and coordinates cross-aggregate reactions such as
// subnet allocation on VLAN creation. Every stored event is also
// published on the event bus for live consumers.
package service
