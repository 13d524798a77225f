package main

import "github.com/claudehenchoz/gensi/cmd"

func main() {
	cmd.Execute()
}
