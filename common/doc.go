// Package common provides shared constants, types, utilities, and interfaces
// used throughout the VPN Registry application.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: Application-wide constants like file names, intervals, and store kinds
//   - Errors: Sentinel errors for consistent error handling across packages
//   - Interfaces: Abstractions for credential storage
//   - Logger: slog-backed logging with rotated file output
//   - Utils: Identifier generation and directory helpers
//
// # Usage
//
//	logger := common.Component("registry")
//	logger.Info("profile saved", "id", profile.ID)
//
//	if errors.Is(err, common.ErrProfileNotFound) {
//	    // Handle missing profile
//	}
package common
