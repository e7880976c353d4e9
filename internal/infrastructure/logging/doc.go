// Package logging provides structured logging for the home orchestrator.
//
// It wraps log/slog with the service's default fields (service, version,
// site) and a level/format/output selection driven by config.LoggingConfig:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components receive a child logger tagged with their name:
//
//	logger := logging.New(cfg.Logging, version)
//	engineLog := logger.Component("automation")
//	engineLog.Info("command executed", "command", name)
//
// Never log secrets, tokens or MQTT passwords.
package logging
