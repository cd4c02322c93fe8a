//go:build windows

package firewall

import (
	"fmt"
	"os/exec"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"gyrodesk/internal/util"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	return err == nil && member
}

// EnsureRule creates or updates the inbound allow rule for port.
// Without elevation it asks for it through UAC and returns once the prompt is shown.
func EnsureRule(port int) error {
	logger := util.GetLogger().With("component", "firewall")

	out, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+RuleName).CombinedOutput()
	if err == nil && ruleMatches(string(out), RuleName, port) {
		logger.Debug("firewall rule present", "port", port)
		return nil
	}

	script := ruleScript(RuleName, port)
	if IsAdmin() {
		if out, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput(); err != nil {
			return errors.Wrapf(err, "failed to create firewall rule: %s", out)
		}
		logger.Info("firewall rule created", "port", port)
		return nil
	}

	verb, _ := windows.UTF16PtrFromString("runas")
	exe, _ := windows.UTF16PtrFromString("powershell.exe")
	args, _ := windows.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", script))
	if err := windows.ShellExecute(0, verb, exe, args, nil, windows.SW_HIDE); err != nil {
		return errors.Wrap(err, "failed to request elevation")
	}
	logger.Info("requested elevation to open firewall port", "port", port)
	return nil
}
