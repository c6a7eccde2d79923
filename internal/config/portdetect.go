package config

import (
	"regexp"
	"strconv"
)

// PortDetector finds the port an application reports in its output.
type PortDetector struct {
	patterns []*regexp.Regexp
}

// NewPortDetector creates a detector with the common server banners.
func NewPortDetector() *PortDetector {
	return &PortDetector{
		patterns: []*regexp.Regexp{
			// Spring Boot: "Tomcat started on port 8080 (http)" and older "port(s): 8080"
			regexp.MustCompile(`(?i)started\s+on\s+port(?:\(s\))?:?\s+(\d+)`),
			// "Local: http://localhost:5173/"
			regexp.MustCompile(`Local:\s*https?://[^:]+:(\d+)`),
			// "listening on port 3000"
			regexp.MustCompile(`(?i)listening\s+(?:on\s+)?port\s+(\d+)`),
			// "server running at http://..."
			regexp.MustCompile(`(?i)(?:server|app)\s+(?:is\s+)?running\s+(?:at|on)\s+https?://[^:]+:(\d+)`),
			regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0):(\d+)`),
		},
	}
}

// DetectFromOutput scans output text for port patterns.
// Returns the first port found, or 0 if none detected.
func (pd *PortDetector) DetectFromOutput(output string) int {
	for _, pattern := range pd.patterns {
		if matches := pattern.FindStringSubmatch(output); len(matches) > 1 {
			if port, err := strconv.Atoi(matches[1]); err == nil && port > 0 && port < 65536 {
				return port
			}
		}
	}
	return 0
}
