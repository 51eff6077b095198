// Package remote defines the boundary to the messaging platform: the Client
// interface, the Event payload variants and the failure taxonomy. The HTTP
// implementation lives here too, but nothing outside this package may depend
// on it; the pipeline and the FSM engine see only the interface.
package remote
