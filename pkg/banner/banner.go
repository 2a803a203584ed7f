package banner

import (
	"fmt"

	"parlor/pkg/config"
)

const banner = `
██████╗  █████╗ ██████╗ ██╗      ██████╗ ██████╗
██╔══██╗██╔══██╗██╔══██╗██║     ██╔═══██╗██╔══██╗
██████╔╝███████║██████╔╝██║     ██║   ██║██████╔╝
██╔═══╝ ██╔══██║██╔══██╗██║     ██║   ██║██╔══██╗
██║     ██║  ██║██║  ██║███████╗╚██████╔╝██║  ██║
╚═╝     ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝ ╚═════╝ ╚═╝  ╚═╝
`

// Print renders the startup banner with the effective configuration.
func Print(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if eff.Source != "" {
		fmt.Printf("Config source: %s\n", eff.Source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/users/sync                     - identity provider webhook")
	fmt.Println("POST /v1/conversations/direct           - open or reuse a direct chat")
	fmt.Println("POST /v1/conversations/group            - create a group")
	fmt.Println("GET  /v1/conversations                  - list with previews and unread counts")
	fmt.Println("POST /v1/conversations/{id}/messages    - send a message")
	fmt.Println("GET  /v1/live                           - websocket push stream")
}
