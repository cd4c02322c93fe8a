// Package firewall opens the inbound TCP control port on hosts with a
// managed firewall. Only Windows is handled; elsewhere the calls are no-ops.
package firewall

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleName is the display name of the inbound rule
const RuleName = "gyrodesk control"

// ruleScript builds the PowerShell that replaces the rule for port
func ruleScript(name string, port int) string {
	return fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Any",
		name, name, port,
	)
}

// ruleMatches reports whether netsh output describes an allow rule for port
func ruleMatches(output, name string, port int) bool {
	if !strings.Contains(output, name) || !strings.Contains(output, "Allow") {
		return false
	}
	for _, line := range strings.Split(output, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(k) != "LocalPort" {
			continue
		}
		return strings.TrimSpace(v) == strconv.Itoa(port)
	}
	return false
}
