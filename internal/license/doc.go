// Package license implements the licensing core: the canonical license
// store, the pure capacity accountant, on-demand license validation with
// result caching, and license key generation.
//
// The store owns every License record. Seat usage (UsedCount) and team
// bindings (Teams) are accountant-owned fields: the plain Update path
// rejects changes to them, and only the allocation coordinator mutates
// them through BindTeam/UnbindTeam inside its per-license critical
// section. Dashboards read capacity through the accountant functions,
// which are side-effect free and safe to call repeatedly.
package license
