//go:build windows

package util

import (
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var procGetConsoleWindow = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetConsoleWindow")

// StartedFromGUI reports whether the process was launched from Explorer
// rather than a shell.
func StartedFromGUI() bool {
	if hwnd, _, _ := procGetConsoleWindow.Call(); hwnd == 0 {
		return true
	}
	return strings.EqualFold(parentProcessName(), "explorer.exe")
}

func parentProcessName() string {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(snapshot)

	names := map[uint32]string{}
	parents := map[uint32]uint32{}
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	for err = windows.Process32First(snapshot, &pe); err == nil; err = windows.Process32Next(snapshot, &pe) {
		names[pe.ProcessID] = windows.UTF16ToString(pe.ExeFile[:])
		parents[pe.ProcessID] = pe.ParentProcessID
	}
	return names[parents[uint32(os.Getpid())]]
}
