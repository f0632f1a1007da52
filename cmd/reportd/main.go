// Command reportd serves cached reports and refreshes their aggregate views.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
