package main

import (
	"sigaa-scraper/cmd/sigaa-cli/commands"
)

func main() {
	commands.ExecuteContext(commands.SignalContext())
}
