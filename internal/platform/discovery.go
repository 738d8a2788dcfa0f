package platform

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// minRESTVersion is the first PAN-OS release with the REST API.
const minRESTVersion = "9.0"

// SystemInfo holds the parsed "show system info" reply.
type SystemInfo struct {
	Hostname  string `xml:"result>system>hostname"`
	Model     string `xml:"result>system>model"`
	SWVersion string `xml:"result>system>sw-version"`
}

// ParseSystemInfo extracts the software version from a "show system info" reply.
func ParseSystemInfo(body []byte) (*SystemInfo, error) {
	var info SystemInfo
	if err := xml.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing system info: %w", err)
	}
	if info.SWVersion == "" {
		return nil, fmt.Errorf("system info missing sw-version")
	}
	return &info, nil
}

// RESTVersionFor maps a software version such as "10.2.4-h3" to the REST API
// version segment "v10.2".
func RESTVersionFor(swVersion string) (string, error) {
	parts := parseVersionParts(swVersion)
	if len(parts) < 2 {
		return "", fmt.Errorf("unrecognized software version %q", swVersion)
	}
	if !VersionAtLeast(swVersion, minRESTVersion) {
		return "", fmt.Errorf("software version %s has no REST API (need %s+)", swVersion, minRESTVersion)
	}
	return fmt.Sprintf("v%d.%d", parts[0], parts[1]), nil
}

// DiscoverRESTVersion asks the device for its software version and returns
// the matching REST API version.
func DiscoverRESTVersion(ctx context.Context, c *Client) (string, error) {
	body, err := c.Op(ctx, "<show><system><info></info></system></show>")
	if err != nil {
		return "", err
	}
	info, err := ParseSystemInfo(body)
	if err != nil {
		return "", err
	}
	return RESTVersionFor(info.SWVersion)
}

// CompareVersions performs a simple dotted version comparison.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
// Handles partial versions (e.g. "10.1" vs "10.1.9"). Hotfix suffixes such
// as "-h2" are ignored.
func CompareVersions(a, b string) int {
	aParts := parseVersionParts(a)
	bParts := parseVersionParts(b)

	maxLen := len(aParts)
	if len(bParts) > maxLen {
		maxLen = len(bParts)
	}

	for i := 0; i < maxLen; i++ {
		var av, bv int
		if i < len(aParts) {
			av = aParts[i]
		}
		if i < len(bParts) {
			bv = bParts[i]
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// VersionAtLeast returns true if version >= min.
func VersionAtLeast(version, min string) bool {
	if version == "" || min == "" {
		return true
	}
	return CompareVersions(version, min) >= 0
}

func parseVersionParts(v string) []int {
	parts := strings.Split(v, ".")
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		p, _, _ = strings.Cut(p, "-")
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		result = append(result, n)
	}
	return result
}
