// Package launcher runs bridge executables as supervised child processes.
//
// Bridges normally run as independent services talking to the orchestrator
// over MQTT. On small installs the orchestrator can own them instead: each
// entry under bridges.processes is started in its own process group, its
// output is logged line by line, and it is restarted with exponential
// backoff when it exits. Stop sends SIGTERM to the group and escalates to
// SIGKILL after the graceful timeout.
//
//	group := launcher.NewGroup(cfg.Bridges.Processes, log, rec)
//	if err := group.Start(ctx); err != nil {
//	    log.Warn("some bridges failed to start", "error", err)
//	}
//	defer group.Stop()
package launcher
