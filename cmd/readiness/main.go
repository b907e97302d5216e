// Command readiness analyses an invoice export from the command line
// without a server, database or object storage.
package main

import (
	"log"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.SetFlags(0)
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
