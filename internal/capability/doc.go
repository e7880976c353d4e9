// Package capability defines the device capabilities the orchestrator drives
// and supervises their adapters' lifecycle.
//
// A capability kind (lighting, thermostat, activity hub, binary-output mesh,
// camera, audio, presence) is consumed through a small Go interface. The
// concrete adapters live elsewhere (see internal/bridges/mqttbridge) and are
// constructed by a Factory registered with the Supervisor.
//
// Availability rules:
//
//   - A kind is available iff its Factory succeeded and no fatal event for
//     that kind has arrived since.
//   - Each kind is constructed at most once per process. A demoted kind stays
//     unavailable until restart; the orchestrator never reconnects it.
//   - Demotion happens synchronously when the fatal event is emitted, before
//     the event is forwarded to the orchestrator.
//
// Usage:
//
//	sup := capability.NewSupervisor(orchestrator.HandleEvent, log)
//	sup.Register(capability.Registration{Kind: capability.Lighting, Factory: lightingFactory})
//	sup.InitAll(ctx)
//	if sup.IsAvailable(capability.Lighting) { ... }
package capability
