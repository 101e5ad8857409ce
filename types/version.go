package types

// Version is the canonical project version.
// The CLI, the engine, and the wire protocol share this version
// per the lockstep versioning policy.
const Version = "0.1.0"

// ProtocolVersion is the scene sync wire protocol version.
// Bumped only when the frame layout or message shapes change.
const ProtocolVersion = "1.0"
