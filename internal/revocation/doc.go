// Package revocation remembers redeemed refresh token IDs so that each refresh
// token can be exchanged once. Entries expire with the token they describe.
package revocation
