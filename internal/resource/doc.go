// Package resource accounts for accelerator resources.
//
// A Controller enforces an optional memory budget for device allocations
// and an optional transfer bandwidth limit for host/device copies. A nil
// *Controller is valid and imposes no limits.
package resource
