// Package aflib is the client SDK hub firmware uses to exchange attribute
// state with the local hubby service process.
//
// The SDK covers three concerns:
//
//   - receiving attribute "set" requests from the service and answering
//     them synchronously (SetHandler return value) or asynchronously
//     (HandleSetAsync + ConfirmAttr)
//   - sending attribute updates and value queries to the service
//     (SetAttribute*, GetAttribute; results arrive via NotifyHandler)
//   - loading the hub's binary attribute profile and answering id-based
//     lookups (LoadProfile, Profile.FindAttribute)
//
// Hubby-side contract notes:
//
// Hubby serves the hubbyrpc.AttributeService on a unix domain socket
// (DefaultHubbyAddr). Each firmware process opens one OpenSession stream,
// introduces itself with a hello frame, and then exchanges frames for the
// life of the process. Hubby owns routing and device identity; the SDK
// reconnects with backoff whenever the session breaks and reports the
// break through the IPCDisconnectedHandler.
//
// Simple firmware can use Init for the classic three-argument entry point;
// larger applications implement Firmware and let Run own the wiring.
package aflib
