// Package home is the orchestrator that owns the home's system state.
//
// One goroutine (Orchestrator.Run) consumes an inbox of closures. Public
// triggers (commands, keypad, doorbell, state changes), adapter events,
// the arming timer and the away refresh all go through it, so system
// state, debounce entries and readings need no locks. Adapter calls made
// by plans run on their own goroutines and are joined off the loop.
//
// State machine:
//
//	HOME ──set ARMED──▶ ARMED ──arming delay──▶ AWAY
//	  ▲                   │                      │
//	  └──────set HOME─────┴──door open (drive)───┘
//
// Every real transition mirrors state/systemState, appends to
// logs/systemState, switches the thermostat away mode and dispatches
// RUN_ON_<STATE>. Door, motion and presence events are debounced before
// they dispatch DOOR_<NAME>, MOTION_<LABEL> and PRESENCE_SOME/NONE.
package home
