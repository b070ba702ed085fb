package common

import "runtime/debug"

// PackageName tags metrics and logs emitted by gateway binaries.
const PackageName = "oneedge-gateway"

// Version is the git revision baked in at build time, falling back to the
// module version from build info.
var Version = func() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
		if info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}()
