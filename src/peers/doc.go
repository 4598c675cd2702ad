// Package peers defines the concept of a helisync peer and the directories that
// resolve a node role to reachable peers.
//
// A peer is a node of the LAN, identified by its network address, with a
// user-friendly moniker and the role it plays (camp, town, air company or
// helicopter). Nodes publish themselves and find each other through a
// Directory. Three directories are provided: StaticDirectory holds a fixed list
// in memory, JSONDirectory reads and writes a peers.json file that operators
// can edit by hand, and MDNSDirectory advertises and browses DNS-SD services
// ("_camp._tcp", "_town._tcp", ...) over multicast DNS.
package peers
