//go:build windows

package mpc

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const wmCopydata = 0x004A

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW = user32.NewProc("FindWindowW")
	procSendMsgW    = user32.NewProc("SendMessageW")
)

type copyDataStruct struct {
	dwData uintptr
	cbData uint32
	lpData uintptr
}

// windowsTransport sends COPYDATA messages to MPC's main window, found by
// its documented window class name, via user32.dll (not wrapped by
// golang.org/x/sys/windows, which covers the NT/kernel surface but not
// classic UI messaging — called directly through the DLL like any other
// unwrapped Win32 API).
type windowsTransport struct {
	hwnd uintptr
}

// NewWindowsTransport locates a running MPC-HC/BE window by class name and
// returns a transport that sends WM_COPYDATA messages to it.
func NewWindowsTransport(windowClass string) (transport, error) {
	classUTF16, err := windows.UTF16PtrFromString(windowClass)
	if err != nil {
		return nil, err
	}
	hwnd, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(classUTF16)), 0)
	if hwnd == 0 {
		return nil, fmt.Errorf("mpc: window class %q not found", windowClass)
	}
	return &windowsTransport{hwnd: hwnd}, nil
}

func (t *windowsTransport) Send(ctx context.Context, cmd uint32, payload string) error {
	data := append([]byte(payload), 0)
	cds := copyDataStruct{
		dwData: uintptr(cmd),
		cbData: uint32(len(data)),
		lpData: uintptr(unsafe.Pointer(&data[0])),
	}
	ret, _, callErr := procSendMsgW.Call(t.hwnd, wmCopydata, 0, uintptr(unsafe.Pointer(&cds)))
	if ret == 0 && callErr != nil && callErr.Error() != "The operation completed successfully." {
		return fmt.Errorf("mpc: send copydata: %w", callErr)
	}
	return nil
}

func (t *windowsTransport) Close() error {
	return nil
}
