package main

import "github.com/petrovskifilip/agri-management-system/services/scheduler/cli"

func main() {
	cli.Execute()
}
