package version

// Version is the server release version, overridable at build time with
// -ldflags "-X warden/internal/version.Version=...".
var Version = "1.0.0"
