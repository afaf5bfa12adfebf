package obs

import "runtime/debug"

// BuildInfo describes the running binary for the info endpoint.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	GoVer   string `json:"go,omitempty"`
}

// Build returns version metadata embedded by the linker, falling back to
// module build info when available.
func Build(version string) BuildInfo {
	info := BuildInfo{Version: version}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVer = bi.GoVersion
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		}
	}
	return info
}
