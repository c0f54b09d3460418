// Package status defines the readiness states of a lens motor controller and
// the rules for moving between them.
//
// The state graph is:
//
//	NotInitialized -> Initializing -> Ready <-> Moving
//	Ready/Initializing/Moving -> PositionUnknown   (step count outside the configured bounds)
//	any -> Error                                   (hardware or communication failure)
//	any -> NotInitialized                          (port or lens family changed)
//
// PositionUnknown and Error are left only by re-initializing, except that a
// relative move may be attempted from PositionUnknown when the session allows it.
package status
