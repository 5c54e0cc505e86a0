package main

import "github.com/tamalehq/tamalebot/cmd"

func main() {
	cmd.Execute()
}
