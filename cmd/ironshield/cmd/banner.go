package cmd

import (
	"fmt"
)

const banner = `
  _____                   _____ _     _      _     _
 |_   _|                 / ____| |   (_)    | |   | |
   | |  _ __ ___  _ __  | (___ | |__  _  ___| | __| |
   | | | '__/ _ \| '_ \  \___ \| '_ \| |/ _ \ |/ _` + "`" + ` |
  _| |_| | | (_) | | | | ____) | | | | |  __/ | (_| |
 |_____|_|  \___/|_| |_|_____/|_| |_|_|\___|_|\__,_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Anti-Forgery Protection Service - Version %s\x1b[0m\n\n", Version)
}
