package herald

import (
	"fmt"
	"runtime"
	"strings"
)

// Version is the library release version reported in the powered-by header.
const Version = "0.1.0"

// PoweredBy returns the identification string sent in the X-Slack-Powered-By
// response header: library, Go runtime, and platform, space separated.
func PoweredBy() string {
	goVersion := strings.TrimPrefix(runtime.Version(), "go")
	return fmt.Sprintf("herald/%s Go/%s %s/%s", Version, goVersion, runtime.GOOS, runtime.GOARCH)
}
