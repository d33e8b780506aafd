//go:build !windows

package mpc

import "errors"

// NewWindowsTransport is unavailable outside Windows: COPYDATA is a
// Win32 window-messaging primitive with no cross-platform equivalent.
func NewWindowsTransport(windowClass string) (transport, error) {
	return nil, errors.New("mpc: COPYDATA transport requires windows")
}
