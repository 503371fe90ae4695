// Command cartctl drives the cart session API from a terminal.
//
//	CARTCTL_USER_ID=bride-1 cartctl add venue-42 --name "Garden venue" --price 150000
//	cartctl show --user bride-1
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
