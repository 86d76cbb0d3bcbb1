package main

import "github.com/petrovskifilip/agri-management-system/services/notifier/cli"

func main() {
	cli.Execute()
}
