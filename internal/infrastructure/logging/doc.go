// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components never build their own zap configuration; they receive a named
// child logger from Logger.Component and treat nil as a no-op logger.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Shell starting", zap.String("port", "7860"))
//	ctrlLog := logger.Component("lifecycle")
package logging
