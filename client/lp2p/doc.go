/*
Package lp2p provides a drand client implementation that retrieves
randomness by subscribing to a libp2p pubsub topic.

WARNING: this client can only be used to "Watch" for new randomness rounds and
"Get" the most recent round it has seen.

If you need to "Get" arbitrary rounds from the chain then you must combine this
client with the http client. WithPubsub plugs the gossip client into client.New
as its watcher.

Every gossiped beacon passes a topic validator before it is delivered or
relayed: undecodable messages, rounds whose time has not come yet, messages for
another chain and beacons failing verification are rejected, and rounds already
seen are ignored. The validator needs chain info, so pass "WithChainInfo()" to
client.New, or "WithChainHash()" together with an HTTP source the info can be
fetched from.
*/
package lp2p
