// Package types defines the remote Service interface, the domain entities
// exchanged with the game server (areas, explores, licenses, dig requests,
// treasures, coins), and the standard errors every component converts remote
// outcomes into.
package types
