// Package preflight provides readiness checks for the directories and
// services coursedrop depends on.
//
// The daemon runs RunAll at startup and logs failures; `coursedrop status`
// renders the same results as a table. Optional features are only checked
// when enabled.
package preflight
