// Package node implements the reactive component of a helisync node.
//
// A node plays one role: camp, town, air company or helicopter. It consumes the
// commands delivered by the transport, refuses the ones its role does not
// accept, and folds the records it receives into its store.
//
// # Roles
//
// Camps and air companies hold the full picture: they accept pulls, batch
// pushes and broadcasts from anyone. A town only hears back from the air
// company, through the confirmation command. The helicopter is the courier
// between sites that have no direct link: a camp or an air company tells it to
// take off, it pulls their tables, and when it lands the node pushes what it
// carries to the air companies.
//
// # Records
//
// Records created locally (bookings, cancellations, confirmations, flights)
// are first stored, then pushed to the peers of the node. Camps broadcast to
// the other camps and to the air companies. Towns hand their requests to the
// air companies with takeMyRequest. Air companies broadcast to camps and other
// air companies and send confirmations to towns.
//
// When an air company receives a batch of requests from a helicopter it
// checks the requests it has not checked yet: bookings are confirmed while the
// flight has free seats, cancellations are always confirmed, and the
// confirmations are pushed to the towns.
package node
