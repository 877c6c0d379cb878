// Package files owns the agent's on-disk layout and file discovery.
//
// Manager creates and names everything the agent writes: the ledger and
// snapshot locations under the data directory, the dated report tree, and
// the scratch space portal downloads land in.
//
// The discovery helpers find the freshest download in a directory; portal
// downloads carry server-assigned names, so modification time is the only
// usable ordering.
package files
