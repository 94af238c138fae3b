/*
Package client provides transport-agnostic logic to retrieve and verify
randomness from drand.

The "From" option allows you to specify clients that work over particular
transports. HTTP, gRPC and libp2p PubSub clients are provided as
subpackages client/http, internal/grpc and client/lp2p respectively. Note that
you are not restricted to just one client. You can use multiple clients of the
same type or of different types. They are tried in order on every Get: a
source that fails or returns a beacon that does not verify is skipped in favour
of the next one.

Every beacon returned by the client has been checked to be the requested
round and verified against the public key of the chain. Requesting round 0
returns the latest beacon, which must also be recent with respect to the
client clock.

WARNING: When using the client you should use the "WithChainHash" or
"WithChainInfo" option in order for your client to validate the randomness it
receives is from the correct chain. You may use the "Insecurely" option to
bypass this validation but it is not recommended.

In an application that uses the drand client, the following options are likely
to be needed/customized:

	WithWatcher()
		plugs a push source, such as the gossip client, behind Watch.

	WithClock()
		replaces the clock used for the latest round computation.

	WithPrometheus()
		enables metrics reporting on verification outcomes and source
		latency to a provided prometheus registry.
*/
package client
