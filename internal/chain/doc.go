// Package chain keeps an ordered list of entities in flat storage by giving
// every member a nullable reference to its successor instead of a position
// index.
//
// The same mechanism orders filtering policies within a firewall and rules
// within a filtering policy. A chain is read by materializing an Order from
// the owner's members and mutated through single-member insert and delete
// operations that run inside one storage transaction while holding a lock
// on the owner.
package chain
