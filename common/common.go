// Package common holds process-wide settings shared by the commands.
package common

// PackageName namespaces metrics and log service tags.
const PackageName = "ehsm"

// Version is set at build time with -ldflags "-X github.com/ruteri/tee-kms-core/common.Version=...".
var Version = "dev"
