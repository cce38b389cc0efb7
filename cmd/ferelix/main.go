// ferelix is a self-hosted media server: it scans media libraries, decides
// how each client should play a file, and orchestrates ffmpeg HLS sessions.
package main

import (
	"fmt"
	"os"

	"github.com/NicolasFerec/ferelix-server/cmd/ferelix/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
