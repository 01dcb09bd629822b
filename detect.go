package redgloom

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrNoServerVersion is returned by DetectDriver when INFO does not report a
// parseable redis_version.
var ErrNoServerVersion = errors.New("redgloom: server version not reported")

// scriptingVersion is the first Redis release with EVAL.
var scriptingVersion = [3]int{2, 6, 0}

// DetectDriver picks a driver name for the server behind client: the
// atomic driver when the server supports Lua scripting, the naive one
// otherwise. It is meant to be called once at setup to fill Config.Driver.
func DetectDriver(ctx context.Context, client redis.UniversalClient) (string, error) {
	info, err := client.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}

	version, err := ParseServerVersion(info)
	if err != nil {
		return "", err
	}
	return DriverForVersion(version), nil
}

// DriverForVersion maps a major.minor.patch server version to a driver name.
func DriverForVersion(version [3]int) string {
	for i := range version {
		if version[i] != scriptingVersion[i] {
			if version[i] > scriptingVersion[i] {
				return DriverAtomic
			}
			return DriverNaive
		}
	}
	return DriverAtomic
}

// ParseServerVersion extracts redis_version from the output of INFO server.
// Missing minor or patch components are treated as zero.
func ParseServerVersion(info string) ([3]int, error) {
	var version [3]int

	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "redis_version:")
		if !ok {
			continue
		}

		parts := strings.SplitN(value, ".", 3)
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return version, fmt.Errorf("%w: %q", ErrNoServerVersion, value)
			}
			version[i] = n
		}
		return version, nil
	}
	return version, ErrNoServerVersion
}
