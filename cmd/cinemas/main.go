package main

import (
	"londoncinemas/cmd/cinemas/commands"
	"londoncinemas/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
