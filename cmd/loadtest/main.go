// Command loadtest drives a running chat gateway.
//
//   - saturate:  open N idle connections and hold them
//   - broadcast: connect N clients, have some of them chat, and measure
//     fan-out latency and completeness
//
// Usage:
//
//	loadtest <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "saturate":
		runSaturate(os.Args[2:])
	case "broadcast":
		runBroadcast(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  saturate    Connection saturation test, opens N idle connections")
	fmt.Println("  broadcast   Fan-out test, N clients where S of them send M messages each")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}

// fakeAddress spreads clients over 10.0.0.0/8 for gateways that trust
// X-Forwarded-For. It returns "" when spreading is off.
func fakeAddress(spread bool, i int) string {
	if !spread {
		return ""
	}
	return fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xff, (i>>8)&0xff, i&0xff)
}
