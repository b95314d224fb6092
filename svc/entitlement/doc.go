// Package entitlement owns the per-user content access gate.
//
// Enable and Disable are the only writers of the entitlement fields. Disable
// is asymmetric: empresa (business) accounts keep access, only socio
// (individual) accounts are revoked. CanViewContent is the read side used by
// content pages.
package entitlement
