package mpv

import (
	"os"
	"path/filepath"
)

// ChatOverlayScriptName is the script-message target the overlay script
// registers under, mirroring the original implementation's
// "syncplayintf" convention renamed for this client.
const ChatOverlayScriptName = "syncclientintf"

// chatOverlayScript is a minimal mpv Lua script rendering chat lines as an
// on-screen overlay: it listens for "<ChatOverlayScriptName> chat"
// script-messages (sent by ShowChat in mpv.go) and displays the line via
// mp.osd_message, which clears it automatically after 5 seconds.
const chatOverlayScript = `local script_name = "` + ChatOverlayScriptName + `"

mp.register_script_message("chat", function(line)
    mp.osd_message(line, 5)
end)
`

// InstallChatOverlayScript writes the chat overlay script into scriptsDir
// (mpv's --scripts-dir, or the --script= path passed at spawn time) and
// returns the path written, so the caller can pass it on the player's
// command line.
func InstallChatOverlayScript(scriptsDir string) (string, error) {
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(scriptsDir, ChatOverlayScriptName+".lua")
	if err := os.WriteFile(path, []byte(chatOverlayScript), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
