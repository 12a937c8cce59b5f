//go:build windows

package windows

import (
	"context"

	"golang.org/x/sys/windows/svc"
)

// serviceRunner answers SCM requests and cancels the app on stop or shutdown.
type serviceRunner struct {
	stop context.CancelFunc
}

// Execute implements svc.Handler
func (m *serviceRunner) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	const cmdsAccepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}
	changes <- svc.Status{State: svc.Running, Accepts: cmdsAccepted}

	for c := range r {
		switch c.Cmd {
		case svc.Interrogate:
			changes <- c.CurrentStatus
		case svc.Stop, svc.Shutdown:
			changes <- svc.Status{State: svc.StopPending}
			m.stop()
			return false, 0
		}
	}
	return false, 0
}

// RunAsService blocks in the service loop. stop is called when the SCM
// asks the service to end.
func RunAsService(name string, stop context.CancelFunc) error {
	return svc.Run(name, &serviceRunner{stop: stop})
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	isService, _ := svc.IsWindowsService()
	return isService
}
