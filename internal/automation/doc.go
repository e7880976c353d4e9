// Package automation resolves named commands into action plans and executes
// them across the available capability adapters.
//
// A command is configured as an ordered list of typed actions. Resolution
// applies the runtime modifier ("OFF", "UP", "DOWN" or a scene name) and the
// live readings to produce a Plan, which references capability kinds only.
// The Engine then runs the plan, isolating each sub-action's failure.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Registry (registry.go)   atomic *HomeConfig snapshot     │
//	│        │                                                  │
//	│        ▼                                                  │
//	│  Resolve (resolver.go)    name + modifier + Readings      │
//	│        │                  → Plan{[]SubAction}              │
//	│        ▼                                                  │
//	│  Engine (engine.go)                                       │
//	│   1. SetState / SetDoNotDisturb inline via SystemHandler  │
//	│   2. Capability check at launch (Capabilities)            │
//	│   3. Adapter calls on goroutines, panics recovered        │
//	│   4. Execution.Wait joins, aggregates, pushes logs/commands│
//	└──────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - HomeConfig: one parsed configuration (commands, scenes, sensors, keypad)
//   - SubAction: sealed set of plan steps (SetState, SetLightScene, ...)
//   - ExecutionResult: per-sub-action outcomes and overall status
//
// # Status
//
// An execution is "ok" when at least one sub-action completed (or the plan
// is empty) and "error" when every sub-action failed or was unavailable.
// Unknown commands produce an error result through Engine.Reject.
//
// # Usage
//
//	registry := automation.NewRegistry(nil)
//	if err := registry.LoadFile("/etc/graylogic/home.yaml"); err != nil {
//	    return err
//	}
//
//	engine := automation.NewEngine(supervisor, orchestrator, writer, log)
//	plan, err := automation.NewResolver(registry).Resolve("GOODNIGHT", "", state)
//	if err != nil {
//	    return engine.Reject("GOODNIGHT", "", "api", err)
//	}
//	result := engine.Execute(ctx, plan, "api").Wait()
package automation
