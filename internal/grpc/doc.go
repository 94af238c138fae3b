/*
Package grpc provides a drand client implementation that uses drand's gRPC API.

The client connects to a drand gRPC endpoint to fetch randomness. The gRPC
client has some advantages over the HTTP client - it is more compact
on-the-wire and supports streaming and authentication.

NewPublicServer serves the same Public service from any drand.Client and is
used by the relay.

Set insecure to `true` to enable _insecure_ connections (not recommended).
*/
package grpc
